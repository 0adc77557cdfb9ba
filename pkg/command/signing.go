package command

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"
)

const privateKeyLength = 32

// SignedCommand is a command authorised by a secp256k1 key. The signer's
// address becomes the caller.
type SignedCommand struct {
	Command   Command `json:"command"`
	Nonce     uint64  `json:"nonce"`
	PublicKey string  `json:"publicKey"`
	Signature string  `json:"signature"`
}

type signingPayload struct {
	Command Command `json:"command"`
	Nonce   uint64  `json:"nonce"`
}

// Digest returns the SHA-256 hash of the canonical command JSON that is signed.
func Digest(command Command, nonce uint64) ([]byte, error) {
	encoded, err := json.Marshal(signingPayload{Command: command, Nonce: nonce})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	digest := sha256.Sum256(encoded)
	return digest[:], nil
}

// Sign signs command with a hex-encoded secp256k1 private key.
func Sign(privateKeyHex string, command Command, nonce uint64) (SignedCommand, error) {
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return SignedCommand{}, err
	}
	op, err := ParseOp(string(command.Op))
	if err != nil {
		return SignedCommand{}, err
	}
	command.Op = op
	if err := command.Validate(); err != nil {
		return SignedCommand{}, err
	}

	digest, err := Digest(command, nonce)
	if err != nil {
		return SignedCommand{}, err
	}
	signature := ecdsa.Sign(privateKey, digest)

	return SignedCommand{
		Command:   command,
		Nonce:     nonce,
		PublicKey: hex.EncodeToString(privateKey.PubKey().SerializeCompressed()),
		Signature: hex.EncodeToString(signature.Serialize()),
	}, nil
}

// Verify checks the signature and returns the signer's address.
func Verify(signed SignedCommand) (string, error) {
	publicKeyBytes, err := parseHex(signed.PublicKey, "public key")
	if err != nil {
		return "", err
	}
	publicKey, err := btcec.ParsePubKey(publicKeyBytes)
	if err != nil {
		return "", fmt.Errorf("invalid public key: %w", err)
	}
	signatureBytes, err := parseHex(signed.Signature, "signature")
	if err != nil {
		return "", err
	}
	signature, err := ecdsa.ParseDERSignature(signatureBytes)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}

	digest, err := Digest(signed.Command, signed.Nonce)
	if err != nil {
		return "", err
	}
	if !signature.Verify(digest, publicKey) {
		return "", fmt.Errorf("signature does not match command")
	}
	return Address(publicKey), nil
}

// Address returns the EVM style address of publicKey: the last 20 bytes of the
// Keccak-256 hash of the uncompressed key without its prefix byte.
func Address(publicKey *btcec.PublicKey) string {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(publicKey.SerializeUncompressed()[1:])
	sum := hasher.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// AddressFromPrivateKey derives the signer address for a hex-encoded private key.
func AddressFromPrivateKey(privateKeyHex string) (string, error) {
	privateKey, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return Address(privateKey.PubKey()), nil
}

// GenerateKey returns a new hex-encoded secp256k1 private key.
func GenerateKey() (string, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(privateKey.Serialize()), nil
}

func parsePrivateKey(privateKeyHex string) (*btcec.PrivateKey, error) {
	decoded, err := parseHex(privateKeyHex, "private key")
	if err != nil {
		return nil, err
	}
	if len(decoded) != privateKeyLength {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", privateKeyLength, len(decoded))
	}
	privateKey, _ := btcec.PrivKeyFromBytes(decoded)
	if privateKey.Key.IsZero() {
		return nil, fmt.Errorf("private key must not be zero")
	}
	return privateKey, nil
}

func parseHex(value string, field string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", field, err)
	}
	return decoded, nil
}
