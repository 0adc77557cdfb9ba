package anchor

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

// MessageFromEvent converts a committed registry event into its anchor message.
func MessageFromEvent(event registry.Event) (Message, error) {
	message := Message{
		P:      Protocol,
		Seq:    event.Sequence,
		Caller: event.Caller,
	}

	switch event.Type {
	case registry.EventPoemPublished:
		id := event.TokenID
		message.Op = OpPublish
		message.ID = &id
		message.Text = event.Text
	case registry.EventMaxLengthUpdated:
		message.Op = OpSetMaxLength
		message.MaxLength = event.MaxLength
	case registry.EventPausedUpdated:
		paused := event.Paused
		message.Op = OpSetPaused
		message.Paused = &paused
	case registry.EventAdminTransferred:
		message.Op = OpTransferAdmin
		message.Admin = event.NewAdmin
	default:
		return Message{}, fmt.Errorf("unsupported event type %q", event.Type)
	}
	return message, nil
}

// ToEvent converts a decoded anchor message back into a registry event.
func (message Message) ToEvent() (registry.Event, error) {
	if err := ValidateMessage(message); err != nil {
		return registry.Event{}, err
	}
	if message.Encoding != "" {
		return registry.Event{}, fmt.Errorf("message content is still encoded")
	}

	event := registry.Event{Sequence: message.Seq, Caller: message.Caller}
	switch message.Op {
	case OpPublish:
		event.Type = registry.EventPoemPublished
		event.TokenID = *message.ID
		event.Text = message.Text
	case OpSetMaxLength:
		event.Type = registry.EventMaxLengthUpdated
		event.MaxLength = message.MaxLength
	case OpSetPaused:
		event.Type = registry.EventPausedUpdated
		event.Paused = *message.Paused
	case OpTransferAdmin:
		event.Type = registry.EventAdminTransferred
		event.NewAdmin = message.Admin
	}
	return event, nil
}

// EncodeEvent serialises event. Poem text is moved into a brotli compressed,
// base64 encoded "c" field when the plain document exceeds CompressionThreshold.
func EncodeEvent(event registry.Event) ([]byte, error) {
	message, err := MessageFromEvent(event)
	if err != nil {
		return nil, err
	}
	if err := ValidateMessage(message); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anchor message: %w", err)
	}
	if len(payload) <= CompressionThreshold || message.Text == "" {
		return payload, nil
	}

	compressed, err := compressText(message.Text)
	if err != nil {
		return nil, err
	}
	message.Content = compressed
	message.Encoding = EncodingBrotli
	message.Text = ""

	payload, err = json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anchor message: %w", err)
	}
	return payload, nil
}

// DecodeMessage parses and validates an anchor payload, expanding compressed text.
func DecodeMessage(payload []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(bytes.TrimSpace(payload), &message); err != nil {
		return Message{}, fmt.Errorf("failed to decode anchor message: %w", err)
	}

	if message.Encoding != "" || message.Content != "" {
		if message.Encoding != EncodingBrotli {
			return Message{}, fmt.Errorf("unsupported content encoding %q", message.Encoding)
		}
		text, err := decompressText(message.Content)
		if err != nil {
			return Message{}, err
		}
		message.Text = text
		message.Content = ""
		message.Encoding = ""
	}

	if err := ValidateMessage(message); err != nil {
		return Message{}, err
	}
	return message, nil
}

// ValidateMessage checks protocol, sequence and the fields each operation requires.
func ValidateMessage(message Message) error {
	if message.P != Protocol {
		return fmt.Errorf("unsupported protocol %q", message.P)
	}
	if message.Seq == 0 {
		return fmt.Errorf("sequence must be positive")
	}
	if strings.TrimSpace(message.Caller) == "" {
		return fmt.Errorf("caller is required")
	}

	switch message.Op {
	case OpPublish:
		if message.ID == nil {
			return fmt.Errorf("publish requires id")
		}
		if message.Text == "" && message.Content == "" {
			return fmt.Errorf("publish requires text")
		}
		if !utf8.ValidString(message.Text) {
			return fmt.Errorf("publish text is not valid UTF-8")
		}
	case OpSetMaxLength:
		if err := registry.ValidateMaxLength(message.MaxLength); err != nil {
			return err
		}
	case OpSetPaused:
		if message.Paused == nil {
			return fmt.Errorf("set_paused requires paused")
		}
	case OpTransferAdmin:
		if strings.TrimSpace(message.Admin) == "" {
			return fmt.Errorf("transfer_admin requires admin")
		}
	default:
		return fmt.Errorf("unsupported operation %q", message.Op)
	}
	return nil
}

func compressText(text string) (string, error) {
	var buffer bytes.Buffer
	writer := brotli.NewWriterLevel(&buffer, brotli.BestCompression)
	if _, err := writer.Write([]byte(text)); err != nil {
		return "", fmt.Errorf("failed to compress text: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to compress text: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buffer.Bytes()), nil
}

func decompressText(content string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
	if err != nil {
		return "", fmt.Errorf("failed to decode compressed content: %w", err)
	}
	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return "", fmt.Errorf("failed to decompress content: %w", err)
	}
	return string(decompressed), nil
}
