package registry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

// NormalizeAccount trims an account identity and lower-cases EVM style
// addresses. A 0x value must be a full 20 byte address.
func NormalizeAccount(account string) (string, error) {
	trimmed := strings.TrimSpace(account)
	if trimmed == "" {
		return "", newError(KindInvalidArgument, "account is required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if !shared.IsEVMAddress(trimmed) {
			return "", newError(KindInvalidArgument, fmt.Sprintf("invalid EVM address %q", trimmed))
		}
		return strings.ToLower(trimmed), nil
	}
	return trimmed, nil
}

// ValidateText checks a poem against the active length limit. Length is
// counted in bytes. Text must be valid UTF-8 so it survives JSON encoding
// unchanged.
func ValidateText(text string, maxLength int) error {
	if len(text) == 0 {
		return newError(KindEmptyInput, "poem text cannot be empty")
	}
	if len(text) > maxLength {
		return newError(
			KindTooLong,
			fmt.Sprintf("poem exceeds maximum length: %d > %d bytes", len(text), maxLength),
		)
	}
	if !utf8.ValidString(text) {
		return newError(KindInvalidArgument, "poem text is not valid UTF-8")
	}
	return nil
}

// ValidateMaxLength checks a proposed maximum poem length.
func ValidateMaxLength(length int) error {
	if length <= 0 {
		return newError(KindInvalidArgument, "max length must be positive")
	}
	if length > MaxTextLengthCeiling {
		return newError(
			KindInvalidArgument,
			fmt.Sprintf("max length too large: %d > %d", length, MaxTextLengthCeiling),
		)
	}
	return nil
}
