package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/anchor"
	"github.com/hashgraph-online/poetry-registry-go/pkg/checkpoint"
	"github.com/hashgraph-online/poetry-registry-go/pkg/command"
	"github.com/hashgraph-online/poetry-registry-go/pkg/indexer"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry/sqlite"
	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

type session struct {
	registry  *registry.Registry
	publisher *anchor.Publisher
	client    *anchor.Client
	done      chan error
}

// openRegistry opens the local store. With anchor set and a topic configured,
// committed events are also submitted to the anchor topic.
func (application *app) openRegistry(ctx context.Context, anchored bool) (*session, error) {
	store, err := sqlite.Open(application.cfg.DBPath)
	if err != nil {
		return nil, err
	}

	opts := []registry.Option{
		registry.WithName(application.cfg.Name, application.cfg.Symbol),
	}

	current := &session{}
	if anchored && application.cfg.anchoring() {
		if err := application.startPublisher(ctx, current, store); err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, registry.WithEventHandler(current.publisher.Handle))
	}

	deployer, deployerErr := application.cfg.deployer()
	poems, err := registry.Open(ctx, store, deployer, opts...)
	if err != nil {
		_ = store.Close()
		current.stopPublisher(application)
		if deployerErr != nil && registry.KindOf(err) == registry.KindInvalidArgument {
			return nil, deployerErr
		}
		return nil, err
	}
	current.registry = poems

	if current.publisher != nil {
		if _, err := current.publisher.Resume(ctx); err != nil {
			return nil, errors.Join(err, current.close(application))
		}
	}
	return current, nil
}

func (application *app) startPublisher(ctx context.Context, current *session, journal registry.EventJournal) error {
	operator, err := shared.OperatorConfigFromEnv()
	if err != nil {
		return fmt.Errorf("anchoring requires an operator: %w", err)
	}
	client, err := anchor.NewClient(anchor.ClientConfig{
		Network:            operator.Network,
		OperatorAccountID:  operator.AccountID,
		OperatorPrivateKey: operator.PrivateKey,
	})
	if err != nil {
		return err
	}
	publisher, err := anchor.NewPublisher(anchor.PublisherConfig{
		Submitter: client,
		TopicID:   application.cfg.AnchorTopicID,
		Logger:    application.logger,
		Journal:   journal,
	})
	if err != nil {
		_ = client.Close()
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- publisher.Run(context.WithoutCancel(ctx))
	}()
	current.client = client
	current.publisher = publisher
	current.done = done
	return nil
}

func (current *session) stopPublisher(application *app) {
	if current.publisher == nil {
		return
	}
	current.publisher.Close()
	select {
	case <-current.done:
	case <-time.After(application.cfg.AnchorTimeout):
		application.logger.Warn("anchor submissions still pending at exit", "stats", current.publisher.Stats())
	}
	stats := current.publisher.Stats()
	if stats.Failed > 0 {
		application.logger.Warn(
			"some events were not anchored and will be resubmitted on the next anchored run",
			"failed", stats.Failed,
			"submitted", stats.Submitted,
			"anchored", stats.Anchored,
		)
	}
	_ = current.client.Close()
	current.publisher = nil
}

func (current *session) close(application *app) error {
	current.stopPublisher(application)
	if current.registry == nil {
		return nil
	}
	return current.registry.Close()
}

func (application *app) runOperation(op command.Op) handlerFunc {
	return func(ctx context.Context, args []string) error {
		cmd, err := application.buildCommand(op, args)
		if err != nil {
			return err
		}

		caller, callerErr := application.cfg.caller()
		if callerErr != nil && op.Mutating() {
			return callerErr
		}
		return application.execute(ctx, caller, cmd)
	}
}

func (application *app) execute(ctx context.Context, caller string, cmd command.Command) (err error) {
	current, err := application.openRegistry(ctx, cmd.Op.Mutating())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, current.close(application))
	}()

	result, err := command.Execute(ctx, current.registry, caller, cmd)
	if err != nil {
		return err
	}
	return application.printJSON(result)
}

// buildCommand turns positional arguments into a command for op.
func (application *app) buildCommand(op command.Op, args []string) (command.Command, error) {
	cmd := command.Command{Op: op}
	switch op {
	case command.OpPublish:
		if len(args) == 0 {
			return cmd, newUsageError("publish requires poem text or - for stdin")
		}
		if len(args) == 1 && args[0] == "-" {
			text, err := io.ReadAll(application.stdin)
			if err != nil {
				return cmd, fmt.Errorf("read poem from stdin: %w", err)
			}
			cmd.Text = strings.TrimRight(string(text), "\n")
		} else {
			cmd.Text = strings.Join(args, " ")
		}
	case command.OpGetText, command.OpOwnerOf, command.OpTokenURI:
		id, err := singleArg(op, args)
		if err != nil {
			return cmd, err
		}
		cmd.TokenID, err = parseTokenID(id)
		if err != nil {
			return cmd, err
		}
	case command.OpSetMaxLength:
		value, err := singleArg(op, args)
		if err != nil {
			return cmd, err
		}
		cmd.MaxLength, err = strconv.Atoi(value)
		if err != nil {
			return cmd, newUsageError("invalid max length %q", value)
		}
	case command.OpSetPaused:
		value, err := singleArg(op, args)
		if err != nil {
			return cmd, err
		}
		cmd.Paused, err = strconv.ParseBool(value)
		if err != nil {
			return cmd, newUsageError("invalid paused value %q", value)
		}
	case command.OpTransferAdmin:
		account, err := singleArg(op, args)
		if err != nil {
			return cmd, err
		}
		cmd.Account = account
	default:
		if len(args) > 0 {
			return cmd, newUsageError("%s takes no arguments", op)
		}
	}
	return cmd, nil
}

func (application *app) whoami(ctx context.Context, args []string) error {
	caller, err := application.cfg.caller()
	if err != nil {
		return err
	}
	current, err := application.openRegistry(ctx, false)
	if err != nil {
		return err
	}
	admin := current.registry.Admin()
	if err := current.close(application); err != nil {
		return err
	}

	normalized, _ := registry.NormalizeAccount(caller)
	return application.printJSON(map[string]any{
		"caller":  normalized,
		"signing": strings.TrimSpace(application.cfg.PrivateKey) != "",
		"isAdmin": normalized == admin,
	})
}

func (application *app) sign(_ context.Context, args []string) error {
	flags := flag.NewFlagSet("sign", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	nonce := flags.Uint64("nonce", uint64(time.Now().UnixNano()), "command nonce")
	if err := flags.Parse(args); err != nil {
		return newUsageError("sign: %v", err)
	}
	if flags.NArg() == 0 {
		return newUsageError("sign requires an operation")
	}
	op, err := command.ParseOp(flags.Arg(0))
	if err != nil {
		return newUsageError("%v", err)
	}
	cmd, err := application.buildCommand(op, flags.Args()[1:])
	if err != nil {
		return err
	}
	if strings.TrimSpace(application.cfg.PrivateKey) == "" {
		return fmt.Errorf("POETRY_PRIVATE_KEY is required to sign")
	}

	signed, err := command.Sign(application.cfg.PrivateKey, cmd, *nonce)
	if err != nil {
		return err
	}
	return application.printJSON(signed)
}

func (application *app) apply(ctx context.Context, args []string) error {
	path, err := singleArg("apply", args)
	if err != nil {
		return err
	}
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(application.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read signed command: %w", err)
	}

	var signed command.SignedCommand
	if err := json.Unmarshal(data, &signed); err != nil {
		return fmt.Errorf("decode signed command: %w", err)
	}
	caller, err := command.Verify(signed)
	if err != nil {
		return err
	}
	application.logger.Info("signed command verified", "op", string(signed.Command.Op), "caller", caller, "nonce", signed.Nonce)
	return application.execute(ctx, caller, signed.Command)
}

type checkpointOutput struct {
	Checkpoint  checkpoint.Checkpoint        `json:"checkpoint"`
	Consistency *checkpoint.ConsistencyProof `json:"consistency,omitempty"`
}

func (application *app) checkpoint(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("checkpoint", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	from := flags.Uint64("from", 0, "older tree size to prove consistency from")
	if err := flags.Parse(args); err != nil {
		return newUsageError("checkpoint: %v", err)
	}

	tokens, err := application.loadTokens(ctx)
	if err != nil {
		return err
	}
	built, err := checkpoint.Build(tokens)
	if err != nil {
		return err
	}
	output := checkpointOutput{Checkpoint: built}
	if *from > 0 {
		proof, err := checkpoint.ProveConsistency(tokens, *from)
		if err != nil {
			return err
		}
		output.Consistency = &proof
	}
	return application.printJSON(output)
}

func (application *app) prove(ctx context.Context, args []string) error {
	value, err := singleArg("prove", args)
	if err != nil {
		return err
	}
	id, err := parseTokenID(value)
	if err != nil {
		return err
	}
	tokens, err := application.loadTokens(ctx)
	if err != nil {
		return err
	}
	proof, err := checkpoint.Prove(tokens, id)
	if err != nil {
		return err
	}
	return application.printJSON(proof)
}

func (application *app) loadTokens(ctx context.Context) ([]registry.Token, error) {
	current, err := application.openRegistry(ctx, false)
	if err != nil {
		return nil, err
	}
	tokens := current.registry.Tokens()
	return tokens, current.close(application)
}

func (application *app) createTopic(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("create-topic", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	open := flags.Bool("open", false, "allow any account to submit to the topic")
	if err := flags.Parse(args); err != nil {
		return newUsageError("create-topic: %v", err)
	}

	operator, err := shared.OperatorConfigFromEnv()
	if err != nil {
		return err
	}
	client, err := anchor.NewClient(anchor.ClientConfig{
		Network:            operator.Network,
		OperatorAccountID:  operator.AccountID,
		OperatorPrivateKey: operator.PrivateKey,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.CreateTopic(ctx, anchor.CreateTopicOptions{
		Memo:           anchor.BuildTopicMemo(application.cfg.Name),
		RestrictSubmit: !*open,
	})
	if err != nil {
		return err
	}
	application.logger.Info("anchor topic created", "topic_id", result.TopicID, "network", client.Network())
	return application.printJSON(result)
}

type replayOutput struct {
	TopicID    string                 `json:"topicId"`
	Stats      indexer.Stats          `json:"stats"`
	Info       registry.Info          `json:"info"`
	Checkpoint checkpoint.Checkpoint  `json:"checkpoint"`
	Local      *checkpoint.Checkpoint `json:"local,omitempty"`
	InSync     *bool                  `json:"inSync,omitempty"`
}

func (application *app) replay(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("replay", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	watch := flags.Duration("watch", 0, "keep polling at this interval until interrupted")
	if err := flags.Parse(args); err != nil {
		return newUsageError("replay: %v", err)
	}
	if !application.cfg.anchoring() {
		return fmt.Errorf("POETRY_ANCHOR_TOPIC_ID is required to replay")
	}
	deployer, err := application.cfg.deployer()
	if err != nil {
		return err
	}

	replayer, err := indexer.New(indexer.Config{
		Network:       application.cfg.Network,
		MirrorBaseURL: application.cfg.MirrorBaseURL,
		MirrorAPIKey:  application.cfg.MirrorAPIKey,
		TopicID:       application.cfg.AnchorTopicID,
		Admin:         deployer,
		Name:          application.cfg.Name,
		Symbol:        application.cfg.Symbol,
		Logger:        application.logger,
	})
	if err != nil {
		return err
	}

	if _, err := replayer.VerifyTopic(ctx); err != nil {
		return err
	}

	if *watch > 0 {
		if err := replayer.StartPolling(ctx, *watch); err != nil {
			return err
		}
		<-ctx.Done()
		replayer.StopPolling()
	} else if err := replayer.IndexOnce(ctx); err != nil {
		return err
	}

	snapshot := replayer.Snapshot()
	tokens := registry.SortedTokens(snapshot.Tokens)
	replayed, err := checkpoint.Build(tokens)
	if err != nil {
		return err
	}
	output := replayOutput{
		TopicID: replayer.TopicID(),
		Stats:   replayer.Stats(),
		Info: registry.Info{
			Name:          snapshot.Name,
			Symbol:        snapshot.Symbol,
			CurrentID:     snapshot.NextID,
			MaxTextLength: snapshot.Settings.MaxTextLength,
			Paused:        snapshot.Settings.Paused,
			Admin:         snapshot.Settings.Admin,
			TokenCount:    len(tokens),
		},
		Checkpoint: replayed,
	}

	if _, statErr := os.Stat(application.cfg.DBPath); statErr == nil {
		localTokens, err := application.loadTokens(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		local, err := checkpoint.Build(localTokens)
		if err != nil {
			return err
		}
		inSync := local == replayed
		output.Local = &local
		output.InSync = &inSync
	}
	return application.printJSON(output)
}

func singleArg(name any, args []string) (string, error) {
	if len(args) != 1 {
		return "", newUsageError("%v requires exactly one argument", name)
	}
	return strings.TrimSpace(args[0]), nil
}

func parseTokenID(value string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, newUsageError("invalid token id %q", value)
	}
	return id, nil
}
