package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

type Option func(*options)

type options struct {
	logger   *slog.Logger
	handlers []EventHandler
	name     string
	symbol   string
}

// WithLogger sets the logger used for commit and rejection records.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithEventHandler registers a handler for committed events.
func WithEventHandler(handler EventHandler) Option {
	return func(opts *options) {
		if handler != nil {
			opts.handlers = append(opts.handlers, handler)
		}
	}
}

// WithName sets the collection name and symbol used when a store is first initialised.
func WithName(name, symbol string) Option {
	return func(opts *options) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			opts.name = trimmed
		}
		if trimmed := strings.TrimSpace(symbol); trimmed != "" {
			opts.symbol = trimmed
		}
	}
}

// Registry is the poem token state machine. Mutations are serialised; reads
// run concurrently against the last committed state.
type Registry struct {
	store    Store
	logger   *slog.Logger
	handlers []EventHandler

	mutex sync.RWMutex
	state State

	dispatchMutex sync.Mutex
}

// New creates a registry backed by a fresh MemoryStore.
func New(deployer string, opts ...Option) (*Registry, error) {
	return Open(context.Background(), NewMemoryStore(), deployer, opts...)
}

// Open restores a registry from store, initialising the store with default
// settings and deployer as admin when it holds no state yet. A persisted
// admin always takes precedence over deployer. Without WithLogger the
// registry logs to the logger carried by ctx.
func Open(ctx context.Context, store Store, deployer string, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("registry store is required")
	}

	resolved := options{
		logger: shared.LoggerFrom(ctx),
		name:   DefaultName,
		symbol: DefaultSymbol,
	}
	for _, opt := range opts {
		opt(&resolved)
	}

	state, initialized, err := store.Load(ctx)
	if err != nil {
		return nil, newStorageError("load registry state", err)
	}

	if !initialized {
		admin, err := NormalizeAccount(deployer)
		if err != nil {
			return nil, fmt.Errorf("deployer: %w", err)
		}
		state = newState(resolved.name, resolved.symbol, admin)
		if err := store.Initialize(ctx, state); err != nil {
			return nil, newStorageError("initialize registry state", err)
		}
		resolved.logger.Info("registry initialized", "admin", admin, "name", state.Name)
	} else {
		if state.Tokens == nil {
			state.Tokens = map[uint64]Token{}
		}
		if err := checkRestoredState(state); err != nil {
			return nil, err
		}
		resolved.logger.Debug(
			"registry restored",
			"admin", state.Settings.Admin,
			"next_id", state.NextID,
			"sequence", state.Sequence,
		)
	}

	return &Registry{
		store:    store,
		logger:   resolved.logger,
		handlers: resolved.handlers,
		state:    state,
	}, nil
}

func checkRestoredState(state State) error {
	if strings.TrimSpace(state.Settings.Admin) == "" {
		return newStorageError("restored state has no admin", nil)
	}
	if err := ValidateMaxLength(state.Settings.MaxTextLength); err != nil {
		return newStorageError("restored state has invalid max length", err)
	}
	for id := range state.Tokens {
		if id >= state.NextID {
			return newStorageError(
				fmt.Sprintf("restored token %d is not below next id %d", id, state.NextID),
				nil,
			)
		}
	}
	return nil
}

// Close closes the underlying store.
func (registry *Registry) Close() error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	return registry.store.Close()
}

// Publish mints a new token holding text, owned by caller, and returns its id.
func (registry *Registry) Publish(ctx context.Context, caller, text string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	owner, err := NormalizeAccount(caller)
	if err != nil {
		return 0, err
	}

	registry.mutex.Lock()
	if registry.state.Settings.Paused {
		return 0, registry.rejectLocked("publish", owner, newError(KindPaused, "registry is paused"))
	}
	if err := ValidateText(text, registry.state.Settings.MaxTextLength); err != nil {
		return 0, registry.rejectLocked("publish", owner, err)
	}
	if registry.state.NextID == math.MaxUint64 {
		return 0, registry.rejectLocked("publish", owner, newError(KindInvalidArgument, "token id space exhausted"))
	}

	token := Token{ID: registry.state.NextID, Text: text, Owner: owner}
	commit := Commit{NextID: token.ID + 1, Sequence: registry.state.Sequence + 1}
	commit.Event = Event{
		Type:     EventPoemPublished,
		Sequence: commit.Sequence,
		Caller:   owner,
		TokenID:  token.ID,
		Text:     text,
	}
	if err := registry.store.AppendToken(ctx, token, commit); err != nil {
		registry.mutex.Unlock()
		registry.logger.Error("persist poem failed", "id", token.ID, "error", err)
		return 0, newStorageError("persist poem", err)
	}

	registry.state.Tokens[token.ID] = token
	registry.state.NextID = commit.NextID
	registry.state.Sequence = commit.Sequence

	registry.logger.Info(
		"poem published",
		"id", token.ID,
		"owner", owner,
		"bytes", len(text),
		"sequence", commit.Sequence,
	)
	registry.unlockAndDispatch(commit.Event)
	return token.ID, nil
}

// SetMaxLength changes the maximum poem length for future mints.
func (registry *Registry) SetMaxLength(ctx context.Context, caller string, length int) error {
	return registry.updateSettings(ctx, "set_max_length", caller, func(settings *Settings, event *Event) error {
		if err := ValidateMaxLength(length); err != nil {
			return err
		}
		settings.MaxTextLength = length
		event.Type = EventMaxLengthUpdated
		event.MaxLength = length
		return nil
	})
}

// SetPaused enables or disables minting.
func (registry *Registry) SetPaused(ctx context.Context, caller string, paused bool) error {
	return registry.updateSettings(ctx, "set_paused", caller, func(settings *Settings, event *Event) error {
		settings.Paused = paused
		event.Type = EventPausedUpdated
		event.Paused = paused
		return nil
	})
}

// TransferAdmin hands the admin role to newAdmin.
func (registry *Registry) TransferAdmin(ctx context.Context, caller, newAdmin string) error {
	return registry.updateSettings(ctx, "transfer_admin", caller, func(settings *Settings, event *Event) error {
		normalized, err := NormalizeAccount(newAdmin)
		if err != nil {
			return newError(KindInvalidArgument, "new admin is required")
		}
		settings.Admin = normalized
		event.Type = EventAdminTransferred
		event.NewAdmin = normalized
		return nil
	})
}

func (registry *Registry) updateSettings(
	ctx context.Context,
	operation string,
	caller string,
	apply func(settings *Settings, event *Event) error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	account, err := NormalizeAccount(caller)
	if err != nil {
		return err
	}

	registry.mutex.Lock()
	if account != registry.state.Settings.Admin {
		return registry.rejectLocked(operation, account, newError(KindUnauthorized, "caller is not the admin"))
	}

	settings := registry.state.Settings
	event := Event{Caller: account}
	if err := apply(&settings, &event); err != nil {
		return registry.rejectLocked(operation, account, err)
	}

	event.Sequence = registry.state.Sequence + 1
	commit := Commit{NextID: registry.state.NextID, Sequence: event.Sequence, Event: event}
	if err := registry.store.SaveSettings(ctx, settings, commit); err != nil {
		registry.mutex.Unlock()
		registry.logger.Error("persist settings failed", "operation", operation, "error", err)
		return newStorageError("persist settings", err)
	}

	registry.state.Settings = settings
	registry.state.Sequence = commit.Sequence

	registry.logger.Info(
		"registry settings updated",
		"operation", operation,
		"caller", account,
		"max_length", settings.MaxTextLength,
		"paused", settings.Paused,
		"admin", settings.Admin,
		"sequence", commit.Sequence,
	)
	registry.unlockAndDispatch(event)
	return nil
}

// rejectLocked releases the write lock and logs a rejected operation.
func (registry *Registry) rejectLocked(operation, caller string, err error) error {
	registry.mutex.Unlock()
	registry.logger.Debug(
		"operation rejected",
		"operation", operation,
		"caller", caller,
		"kind", string(KindOf(err)),
		"error", err,
	)
	return err
}

// unlockAndDispatch hands the write lock over to the dispatch lock so handlers
// see events in commit order while readers are already unblocked.
func (registry *Registry) unlockAndDispatch(event Event) {
	if len(registry.handlers) == 0 {
		registry.mutex.Unlock()
		return
	}
	registry.dispatchMutex.Lock()
	registry.mutex.Unlock()
	defer registry.dispatchMutex.Unlock()

	for _, handler := range registry.handlers {
		handler(event)
	}
}

// GetText returns the poem stored for id.
func (registry *Registry) GetText(id uint64) (string, error) {
	token, err := registry.Token(id)
	if err != nil {
		return "", err
	}
	return token.Text, nil
}

// OwnerOf returns the owner of id.
func (registry *Registry) OwnerOf(id uint64) (string, error) {
	token, err := registry.Token(id)
	if err != nil {
		return "", err
	}
	return token.Owner, nil
}

// Token returns the full token record for id.
func (registry *Registry) Token(id uint64) (Token, error) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	token, exists := registry.state.Tokens[id]
	if !exists {
		return Token{}, notFoundError(id)
	}
	return token, nil
}

// Exists reports whether id has been minted.
func (registry *Registry) Exists(id uint64) bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	_, exists := registry.state.Tokens[id]
	return exists
}

// CurrentID returns the id the next successful Publish will assign.
func (registry *Registry) CurrentID() uint64 {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.NextID
}

// MaxPoemLength returns the active maximum poem length in bytes.
func (registry *Registry) MaxPoemLength() int {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Settings.MaxTextLength
}

// Paused reports whether minting is disabled.
func (registry *Registry) Paused() bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Settings.Paused
}

// Admin returns the account allowed to change settings.
func (registry *Registry) Admin() string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Settings.Admin
}

// Name returns the collection name.
func (registry *Registry) Name() string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Name
}

// Symbol returns the collection symbol.
func (registry *Registry) Symbol() string {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Symbol
}

// Sequence returns the number of committed mutations.
func (registry *Registry) Sequence() uint64 {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return registry.state.Sequence
}

// Info returns a consistent summary of the registry.
func (registry *Registry) Info() Info {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return Info{
		Name:          registry.state.Name,
		Symbol:        registry.state.Symbol,
		CurrentID:     registry.state.NextID,
		MaxTextLength: registry.state.Settings.MaxTextLength,
		Paused:        registry.state.Settings.Paused,
		Admin:         registry.state.Settings.Admin,
		TokenCount:    len(registry.state.Tokens),
	}
}

// Snapshot returns a deep copy of the committed state.
func (registry *Registry) Snapshot() State {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return cloneState(registry.state)
}

// Tokens returns every minted token ordered by id.
func (registry *Registry) Tokens() []Token {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	return SortedTokens(registry.state.Tokens)
}

// SortedTokens returns the tokens of a state map ordered by id.
func SortedTokens(tokens map[uint64]Token) []Token {
	result := make([]Token, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, token)
	}
	sort.Slice(result, func(left, right int) bool {
		return result[left].ID < result[right].ID
	})
	return result
}
