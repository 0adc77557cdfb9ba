package shared

import (
	"fmt"
	"regexp"
	"strings"

	hedera "github.com/hashgraph/hedera-sdk-go/v2"
)

const (
	NetworkMainnet    = "mainnet"
	NetworkTestnet    = "testnet"
	NetworkPreviewnet = "previewnet"
)

var (
	entityIDPattern   = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	evmAddressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
)

// NormalizeNetwork lower-cases network and defaults it to testnet.
func NormalizeNetwork(network string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(network))
	if normalized == "" {
		return NetworkTestnet, nil
	}

	switch normalized {
	case NetworkMainnet, NetworkTestnet, NetworkPreviewnet:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported network %q", network)
	}
}

// NewHederaClient creates a client for the named network without an operator.
func NewHederaClient(network string) (*hedera.Client, error) {
	normalized, err := NormalizeNetwork(network)
	if err != nil {
		return nil, err
	}

	switch normalized {
	case NetworkMainnet:
		return hedera.ClientForMainnet(), nil
	case NetworkPreviewnet:
		return hedera.ClientForPreviewnet(), nil
	default:
		return hedera.ClientForTestnet(), nil
	}
}

// NewOperatorClient creates a client that pays for transactions with the operator account.
func NewOperatorClient(config OperatorConfig) (*hedera.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	operatorID, err := hedera.AccountIDFromString(strings.TrimSpace(config.AccountID))
	if err != nil {
		return nil, fmt.Errorf("invalid operator account ID: %w", err)
	}
	operatorKey, err := ParsePrivateKey(config.PrivateKey)
	if err != nil {
		return nil, err
	}

	client, err := NewHederaClient(config.Network)
	if err != nil {
		return nil, err
	}
	client.SetOperator(operatorID, operatorKey)
	return client, nil
}

// MirrorBaseURL returns the public mirror node endpoint for network.
func MirrorBaseURL(network string) (string, error) {
	normalized, err := NormalizeNetwork(network)
	if err != nil {
		return "", err
	}
	switch normalized {
	case NetworkMainnet:
		return "https://mainnet-public.mirrornode.hedera.com", nil
	case NetworkPreviewnet:
		return "https://previewnet.mirrornode.hedera.com", nil
	default:
		return "https://testnet.mirrornode.hedera.com", nil
	}
}

// NormalizeEntityID validates a shard.realm.num identifier and strips any checksum suffix.
func NormalizeEntityID(identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	base, checksum, hasChecksum := strings.Cut(trimmed, "-")
	if !entityIDPattern.MatchString(base) {
		return "", fmt.Errorf("invalid entity ID %q", identifier)
	}
	if hasChecksum {
		if len(checksum) != 5 {
			return "", fmt.Errorf("invalid entity ID checksum %q", identifier)
		}
		for _, character := range checksum {
			if character < 'a' || character > 'z' {
				return "", fmt.Errorf("invalid entity ID checksum %q", identifier)
			}
		}
	}
	return base, nil
}

// IsEVMAddress reports whether address is a 0x-prefixed 20 byte hex string, in any case.
func IsEVMAddress(address string) bool {
	return evmAddressPattern.MatchString(strings.ToLower(strings.TrimSpace(address)))
}
