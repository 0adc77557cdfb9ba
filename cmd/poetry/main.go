// Command poetry drives a poem registry stored in a local SQLite database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashgraph-online/poetry-registry-go/pkg/command"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

const usageText = `usage: poetry <command> [arguments]

Registry commands:
  info                         show registry settings
  publish <text|->             mint a poem as the configured account
  get <id>                     print the text of a poem
  owner <id>                   print the owner of a poem
  uri <id>                     print the metadata URI of a poem
  current-id                   print the next token id
  set-max-length <n>           change the maximum poem length (admin)
  set-paused <true|false>      pause or resume publishing (admin)
  transfer-admin <account>     hand administration to another account (admin)

Signed commands:
  whoami                       show the caller identity
  sign [-nonce n] <op> [arg]   sign a command with POETRY_PRIVATE_KEY
  apply <file|->               verify and execute a signed command

Audit:
  checkpoint [-from n]         Merkle root over all poems
  prove <id>                   inclusion proof for a poem
  create-topic [-open]         create an anchor topic on Hedera
  replay [-watch d]            rebuild the registry from the anchor topic

Configuration is read from the environment: POETRY_DB_PATH, POETRY_ACCOUNT,
POETRY_PRIVATE_KEY, POETRY_DEPLOYER, POETRY_ANCHOR_TOPIC_ID, HEDERA_NETWORK,
HEDERA_ACCOUNT_ID, HEDERA_PRIVATE_KEY, MIRROR_BASE_URL, POETRY_LOG_LEVEL.
`

var errUsage = errors.New("usage")

type usageError struct {
	message string
}

func (err usageError) Error() string {
	return err.message
}

func (err usageError) Is(target error) bool {
	return target == errUsage
}

func newUsageError(format string, args ...any) error {
	return usageError{message: fmt.Sprintf(format, args...)}
}

type app struct {
	cfg    config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
}

type handlerFunc func(ctx context.Context, args []string) error

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}
	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprint(stdout, usageText)
		return 0
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	logger := shared.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	ctx = shared.WithLogger(ctx, logger)

	application := &app{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout}
	handler, ok := application.handlers()[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usageText)
		return 2
	}

	if err := handler(ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		if kind := registry.KindOf(err); kind != "" {
			fmt.Fprintf(stderr, "error [%s]: %v\n", kind, err)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (application *app) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"info":           application.runOperation(command.OpInfo),
		"publish":        application.runOperation(command.OpPublish),
		"get":            application.runOperation(command.OpGetText),
		"owner":          application.runOperation(command.OpOwnerOf),
		"uri":            application.runOperation(command.OpTokenURI),
		"current-id":     application.runOperation(command.OpCurrentID),
		"set-max-length": application.runOperation(command.OpSetMaxLength),
		"set-paused":     application.runOperation(command.OpSetPaused),
		"transfer-admin": application.runOperation(command.OpTransferAdmin),
		"whoami":         application.whoami,
		"sign":           application.sign,
		"apply":          application.apply,
		"checkpoint":     application.checkpoint,
		"prove":          application.prove,
		"create-topic":   application.createTopic,
		"replay":         application.replay,
	}
}

func (application *app) printJSON(value any) error {
	encoder := json.NewEncoder(application.stdout)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
