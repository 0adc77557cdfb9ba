package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

type Op string

const (
	OpPublish       Op = "publish"
	OpGetText       Op = "get_text"
	OpOwnerOf       Op = "owner_of"
	OpTokenURI      Op = "token_uri"
	OpSetMaxLength  Op = "set_max_length"
	OpSetPaused     Op = "set_paused"
	OpTransferAdmin Op = "transfer_admin"
	OpCurrentID     Op = "current_id"
	OpInfo          Op = "info"
)

// Command is one registry operation as issued by an external driver.
type Command struct {
	Op        Op     `json:"op"`
	Text      string `json:"text,omitempty"`
	TokenID   uint64 `json:"tokenId"`
	MaxLength int    `json:"maxLength,omitempty"`
	Paused    bool   `json:"paused"`
	Account   string `json:"account,omitempty"`
}

// Result carries whichever outputs the executed operation produces.
type Result struct {
	Op        Op             `json:"op"`
	Caller    string         `json:"caller,omitempty"`
	TokenID   *uint64        `json:"tokenId,omitempty"`
	Text      string         `json:"text,omitempty"`
	Owner     string         `json:"owner,omitempty"`
	URI       string         `json:"uri,omitempty"`
	CurrentID *uint64        `json:"currentId,omitempty"`
	Info      *registry.Info `json:"info,omitempty"`
}

// ParseOp accepts an operation name, tolerating dashes and case.
func ParseOp(value string) (Op, error) {
	normalized := Op(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	switch normalized {
	case OpPublish, OpGetText, OpOwnerOf, OpTokenURI, OpSetMaxLength,
		OpSetPaused, OpTransferAdmin, OpCurrentID, OpInfo:
		return normalized, nil
	default:
		return "", fmt.Errorf("unknown operation %q", value)
	}
}

// Mutating reports whether op changes registry state.
func (op Op) Mutating() bool {
	switch op {
	case OpPublish, OpSetMaxLength, OpSetPaused, OpTransferAdmin:
		return true
	default:
		return false
	}
}

// Validate checks that command carries the inputs its operation needs.
func (command Command) Validate() error {
	if _, err := ParseOp(string(command.Op)); err != nil {
		return err
	}
	switch command.Op {
	case OpTransferAdmin:
		if strings.TrimSpace(command.Account) == "" {
			return fmt.Errorf("transfer_admin requires account")
		}
	}
	return nil
}

// Execute runs command against poems on behalf of caller.
func Execute(ctx context.Context, poems *registry.Registry, caller string, command Command) (Result, error) {
	if poems == nil {
		return Result{}, fmt.Errorf("registry is required")
	}
	op, err := ParseOp(string(command.Op))
	if err != nil {
		return Result{}, err
	}
	command.Op = op
	if err := command.Validate(); err != nil {
		return Result{}, err
	}

	result := Result{Op: op, Caller: strings.TrimSpace(caller)}
	switch op {
	case OpPublish:
		id, err := poems.Publish(ctx, caller, command.Text)
		if err != nil {
			return Result{}, err
		}
		result.TokenID = &id
		result.Text = command.Text
		result.Owner, _ = registry.NormalizeAccount(caller)
	case OpGetText:
		text, err := poems.GetText(command.TokenID)
		if err != nil {
			return Result{}, err
		}
		result.TokenID = &command.TokenID
		result.Text = text
	case OpOwnerOf:
		owner, err := poems.OwnerOf(command.TokenID)
		if err != nil {
			return Result{}, err
		}
		result.TokenID = &command.TokenID
		result.Owner = owner
	case OpTokenURI:
		uri, err := poems.TokenURI(command.TokenID)
		if err != nil {
			return Result{}, err
		}
		result.TokenID = &command.TokenID
		result.URI = uri
	case OpSetMaxLength:
		if err := poems.SetMaxLength(ctx, caller, command.MaxLength); err != nil {
			return Result{}, err
		}
		result.Info = infoPointer(poems)
	case OpSetPaused:
		if err := poems.SetPaused(ctx, caller, command.Paused); err != nil {
			return Result{}, err
		}
		result.Info = infoPointer(poems)
	case OpTransferAdmin:
		if err := poems.TransferAdmin(ctx, caller, command.Account); err != nil {
			return Result{}, err
		}
		result.Info = infoPointer(poems)
	case OpCurrentID:
		current := poems.CurrentID()
		result.CurrentID = &current
	case OpInfo:
		result.Info = infoPointer(poems)
	}
	return result, nil
}

// Decode parses a JSON command document.
func Decode(data []byte) (Command, error) {
	var command Command
	if err := json.Unmarshal(data, &command); err != nil {
		return Command{}, fmt.Errorf("failed to decode command: %w", err)
	}
	op, err := ParseOp(string(command.Op))
	if err != nil {
		return Command{}, err
	}
	command.Op = op
	return command, nil
}

func infoPointer(poems *registry.Registry) *registry.Info {
	info := poems.Info()
	return &info
}
