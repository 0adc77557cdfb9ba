package registry

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, initialized, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if initialized {
		t.Fatal("expected fresh store to be uninitialized")
	}
	if err := store.AppendToken(ctx, Token{ID: 0, Text: "x", Owner: "a"}, Commit{NextID: 1, Sequence: 1}); err == nil {
		t.Fatal("expected error writing to uninitialized store")
	}

	initial := newState(DefaultName, DefaultSymbol, testAdmin)
	if err := store.Initialize(ctx, initial); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Initialize(ctx, initial); err == nil {
		t.Fatal("expected error initializing twice")
	}

	token := Token{ID: 0, Text: "first", Owner: testAuthor}
	if err := store.AppendToken(ctx, token, Commit{NextID: 1, Sequence: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.AppendToken(ctx, token, Commit{NextID: 2, Sequence: 2}); err == nil {
		t.Fatal("expected duplicate token error")
	}
	settings := Settings{MaxTextLength: 900, Paused: true, Admin: testAdmin}
	if err := store.SaveSettings(ctx, settings, Commit{NextID: 1, Sequence: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, initialized, err := store.Load(ctx)
	if err != nil || !initialized {
		t.Fatalf("expected initialized state, got %v (%v)", initialized, err)
	}
	expected := State{
		Name:     DefaultName,
		Symbol:   DefaultSymbol,
		NextID:   1,
		Sequence: 2,
		Settings: settings,
		Tokens:   map[uint64]Token{0: token},
	}
	if diff := cmp.Diff(expected, loaded); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := store.Load(ctx); err == nil {
		t.Fatal("expected error loading closed store")
	}
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Initialize(ctx, newState(DefaultName, DefaultSymbol, testAdmin)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, _, _ := store.Load(ctx)
	loaded.Tokens[5] = Token{ID: 5}

	reloaded, _, _ := store.Load(ctx)
	if len(reloaded.Tokens) != 0 {
		t.Fatalf("expected store to be unaffected, got %d tokens", len(reloaded.Tokens))
	}
}

func TestMemoryStoreJournalsCommittedEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	poems, err := Open(ctx, store, testAdmin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := poems.Publish(ctx, testAuthor, "journaled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := poems.SetPaused(ctx, testAuthor, true); err == nil {
		t.Fatal("expected unauthorized error")
	}
	if err := poems.SetPaused(ctx, testAdmin, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events, err := store.EventsAfter(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []Event{
		{Type: EventPoemPublished, Sequence: 1, Caller: testAuthor, TokenID: 0, Text: "journaled"},
		{Type: EventPausedUpdated, Sequence: 2, Caller: testAdmin, Paused: true},
	}
	if diff := cmp.Diff(expected, events); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}

	if err := store.MarkAnchored(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.MarkAnchored(ctx, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	anchored, err := store.AnchoredSequence(ctx)
	if err != nil || anchored != 1 {
		t.Fatalf("expected anchored sequence 1, got %d (%v)", anchored, err)
	}
	remaining, err := store.EventsAfter(ctx, anchored)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Sequence != 2 {
		t.Fatalf("unexpected remaining events: %+v", remaining)
	}
}
