package shared

import (
	"fmt"
	"strings"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

const (
	keyPrefixECDSA   = "ecdsa:"
	keyPrefixED25519 = "ed25519:"
)

// ParsePrivateKey parses an operator key. DER encoded keys name their own
// algorithm. A raw 32 byte hex key is read as ED25519 unless it is prefixed
// with "ecdsa:", so the same secp256k1 key used for signed commands can pay
// for anchoring.
func ParsePrivateKey(raw string) (hedera.PrivateKey, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return hedera.PrivateKey{}, fmt.Errorf("operator private key is required")
	}

	lower := strings.ToLower(candidate)
	switch {
	case strings.HasPrefix(lower, keyPrefixECDSA):
		key, err := hedera.PrivateKeyFromStringECDSA(trimHexPrefix(candidate[len(keyPrefixECDSA):]))
		if err != nil {
			return hedera.PrivateKey{}, fmt.Errorf("invalid ECDSA operator key: %w", err)
		}
		return key, nil
	case strings.HasPrefix(lower, keyPrefixED25519):
		key, err := hedera.PrivateKeyFromStringEd25519(trimHexPrefix(candidate[len(keyPrefixED25519):]))
		if err != nil {
			return hedera.PrivateKey{}, fmt.Errorf("invalid ED25519 operator key: %w", err)
		}
		return key, nil
	}

	candidate = trimHexPrefix(candidate)
	key, err := hedera.PrivateKeyFromString(candidate)
	if err == nil {
		return key, nil
	}
	ecdsaKey, ecdsaErr := hedera.PrivateKeyFromStringECDSA(candidate)
	if ecdsaErr == nil {
		return ecdsaKey, nil
	}
	return hedera.PrivateKey{}, fmt.Errorf("operator private key is neither DER, ED25519 nor ECDSA: %w", err)
}

func trimHexPrefix(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		return trimmed[2:]
	}
	return trimmed
}
