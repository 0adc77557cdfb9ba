package registry

import (
	"context"
	"fmt"
	"sync"
)

// Store persists registry state. Every write method must be atomic: either the
// whole change is durable or none of it is.
type Store interface {
	// Load returns the persisted state and whether the store was initialised.
	Load(ctx context.Context) (State, bool, error)
	// Initialize writes the initial state. It fails if the store is already initialised.
	Initialize(ctx context.Context, state State) error
	// AppendToken inserts a new token together with the updated counters.
	AppendToken(ctx context.Context, token Token, commit Commit) error
	// SaveSettings replaces the governance settings together with the updated counters.
	SaveSettings(ctx context.Context, settings Settings, commit Commit) error
	Close() error
}

// EventJournal keeps committed events until they are confirmed on the anchor
// topic. Stores that implement it write the journal entry of a Commit in the
// same atomic step as the state change.
type EventJournal interface {
	// AnchoredSequence returns the highest sequence confirmed without gaps.
	AnchoredSequence(ctx context.Context) (uint64, error)
	// EventsAfter returns journaled events above sequence, oldest first.
	EventsAfter(ctx context.Context, sequence uint64) ([]Event, error)
	// MarkAnchored raises the anchored sequence. Lower values are ignored.
	MarkAnchored(ctx context.Context, sequence uint64) error
}

// MemoryStore is an in-process Store. State is lost when the process exits.
type MemoryStore struct {
	mutex       sync.Mutex
	state       State
	events      []Event
	anchored    uint64
	initialized bool
	closed      bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (store *MemoryStore) Load(ctx context.Context) (State, bool, error) {
	if err := ctx.Err(); err != nil {
		return State{}, false, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return State{}, false, fmt.Errorf("memory store is closed")
	}
	if !store.initialized {
		return State{}, false, nil
	}
	return cloneState(store.state), true, nil
}

// Initialize stores the initial state.
func (store *MemoryStore) Initialize(ctx context.Context, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return fmt.Errorf("memory store is closed")
	}
	if store.initialized {
		return fmt.Errorf("memory store is already initialized")
	}
	store.state = cloneState(state)
	store.initialized = true
	return nil
}

// AppendToken inserts token and applies commit.
func (store *MemoryStore) AppendToken(ctx context.Context, token Token, commit Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.writableLocked(); err != nil {
		return err
	}
	if _, exists := store.state.Tokens[token.ID]; exists {
		return fmt.Errorf("token %d already stored", token.ID)
	}
	store.state.Tokens[token.ID] = token
	store.applyCommitLocked(commit)
	return nil
}

// SaveSettings replaces the settings and applies commit.
func (store *MemoryStore) SaveSettings(ctx context.Context, settings Settings, commit Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if err := store.writableLocked(); err != nil {
		return err
	}
	store.state.Settings = settings
	store.applyCommitLocked(commit)
	return nil
}

// AnchoredSequence returns the highest sequence marked as anchored.
func (store *MemoryStore) AnchoredSequence(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.closed {
		return 0, fmt.Errorf("memory store is closed")
	}
	return store.anchored, nil
}

// EventsAfter returns journaled events with a sequence above sequence.
func (store *MemoryStore) EventsAfter(ctx context.Context, sequence uint64) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.closed {
		return nil, fmt.Errorf("memory store is closed")
	}
	result := make([]Event, 0)
	for _, event := range store.events {
		if event.Sequence > sequence {
			result = append(result, event)
		}
	}
	return result, nil
}

// MarkAnchored raises the anchored sequence.
func (store *MemoryStore) MarkAnchored(ctx context.Context, sequence uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if err := store.writableLocked(); err != nil {
		return err
	}
	if sequence > store.anchored {
		store.anchored = sequence
	}
	return nil
}

// Close marks the store closed. Later calls fail.
func (store *MemoryStore) Close() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.closed = true
	return nil
}

func (store *MemoryStore) applyCommitLocked(commit Commit) {
	store.state.NextID = commit.NextID
	store.state.Sequence = commit.Sequence
	if commit.Event.Type != "" {
		store.events = append(store.events, commit.Event)
	}
}

func (store *MemoryStore) writableLocked() error {
	if store.closed {
		return fmt.Errorf("memory store is closed")
	}
	if !store.initialized {
		return fmt.Errorf("memory store is not initialized")
	}
	return nil
}

var (
	_ Store        = (*MemoryStore)(nil)
	_ EventJournal = (*MemoryStore)(nil)
)
