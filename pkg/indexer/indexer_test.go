package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashgraph-online/poetry-registry-go/pkg/anchor"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

const (
	testTopicID = "0.0.5001"
	testAdmin   = "0.0.1001"
)

type mirrorFixture struct {
	mutex    sync.Mutex
	messages []map[string]any
	requests int
	topic    map[string]any
}

func (fixture *mirrorFixture) add(message map[string]any) {
	fixture.mutex.Lock()
	defer fixture.mutex.Unlock()
	message["sequence_number"] = int64(len(fixture.messages) + 1)
	message["consensus_timestamp"] = "1700000000." + strconv.Itoa(len(fixture.messages)+1)
	message["topic_id"] = testTopicID
	fixture.messages = append(fixture.messages, message)
}

func (fixture *mirrorFixture) setTopic(topic map[string]any) {
	fixture.mutex.Lock()
	defer fixture.mutex.Unlock()
	fixture.topic = topic
}

func (fixture *mirrorFixture) addPayload(payload []byte) {
	fixture.add(map[string]any{
		"message":          base64.StdEncoding.EncodeToString(payload),
		"payer_account_id": testAdmin,
	})
}

func (fixture *mirrorFixture) addEvent(t *testing.T, event registry.Event) {
	t.Helper()
	payload, err := anchor.EncodeEvent(event)
	if err != nil {
		t.Fatalf("failed to encode fixture event: %v", err)
	}
	fixture.addPayload(payload)
}

func (fixture *mirrorFixture) serve(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		if request.URL.Path == "/api/v1/topics/"+testTopicID {
			fixture.mutex.Lock()
			topic := fixture.topic
			fixture.mutex.Unlock()
			if topic == nil {
				responseWriter.WriteHeader(http.StatusNotFound)
				_, _ = responseWriter.Write([]byte(`{"error":"not found"}`))
				return
			}
			_ = json.NewEncoder(responseWriter).Encode(topic)
			return
		}
		if request.URL.Path != "/api/v1/topics/"+testTopicID+"/messages" {
			responseWriter.WriteHeader(http.StatusNotFound)
			_, _ = responseWriter.Write([]byte(`{"error":"not found"}`))
			return
		}

		var after int64
		if filter := request.URL.Query().Get("sequencenumber"); strings.HasPrefix(filter, "gt:") {
			parsed, err := strconv.ParseInt(strings.TrimPrefix(filter, "gt:"), 10, 64)
			if err != nil {
				responseWriter.WriteHeader(http.StatusBadRequest)
				return
			}
			after = parsed
		}

		fixture.mutex.Lock()
		filtered := make([]map[string]any, 0, len(fixture.messages))
		for _, message := range fixture.messages {
			if message["sequence_number"].(int64) > after {
				filtered = append(filtered, message)
			}
		}
		next := ""
		if limit, _ := strconv.Atoi(request.URL.Query().Get("limit")); limit > 0 && len(filtered) > limit {
			filtered = filtered[:limit]
			last := filtered[limit-1]["sequence_number"].(int64)
			next = "/api/v1/topics/" + testTopicID + "/messages?order=asc&limit=" + strconv.Itoa(limit) + "&sequencenumber=gt:" + strconv.FormatInt(last, 10)
		}
		fixture.requests++
		encoded, err := json.Marshal(map[string]any{
			"links":    map[string]any{"next": next},
			"messages": filtered,
		})
		fixture.mutex.Unlock()
		if err != nil {
			t.Errorf("failed to marshal mirror fixture response: %v", err)
			return
		}
		_, _ = responseWriter.Write(encoded)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestIndexer(t *testing.T, server *httptest.Server) *Indexer {
	t.Helper()
	indexer, err := New(Config{
		Network:       "testnet",
		MirrorBaseURL: server.URL,
		TopicID:       testTopicID,
		Admin:         testAdmin,
	})
	if err != nil {
		t.Fatalf("unexpected indexer error: %v", err)
	}
	return indexer
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{TopicID: "bad", Admin: testAdmin}); err == nil {
		t.Fatal("expected error for invalid topic ID")
	}
	if _, err := New(Config{TopicID: testTopicID}); err == nil {
		t.Fatal("expected error for missing admin")
	}
	if _, err := New(Config{Network: "devnet", TopicID: testTopicID, Admin: testAdmin}); err == nil {
		t.Fatal("expected error for unsupported network")
	}
}

func TestVerifyTopic(t *testing.T) {
	fixture := &mirrorFixture{}
	indexer := newTestIndexer(t, fixture.serve(t))

	if _, err := indexer.VerifyTopic(t.Context()); err == nil {
		t.Fatal("expected error for a missing topic")
	}

	fixture.setTopic(map[string]any{
		"topic_id":   testTopicID,
		"memo":       "poem-1:PoetryNFT",
		"submit_key": map[string]any{"_type": "ED25519", "key": "abcd"},
	})
	info, err := indexer.VerifyTopic(t.Context())
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if info.TopicID != testTopicID || len(info.SubmitKey) == 0 {
		t.Fatalf("unexpected topic info: %+v", info)
	}

	fixture.setTopic(map[string]any{"topic_id": testTopicID, "memo": "hcs-20"})
	if _, err := indexer.VerifyTopic(t.Context()); err == nil {
		t.Fatal("expected error for a foreign topic memo")
	}
	fixture.setTopic(map[string]any{"topic_id": testTopicID, "memo": "poem-1:PoetryNFT", "deleted": true})
	if _, err := indexer.VerifyTopic(t.Context()); err == nil {
		t.Fatal("expected error for a deleted topic")
	}
}

func TestIndexerReplaysRegistryHistory(t *testing.T) {
	recorder := &registry.EventRecorder{}
	poems, err := registry.New(testAdmin, registry.WithEventHandler(recorder.Handle))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()
	mustPublish(t, poems, "0.0.2002", "Roses are red")
	if err := poems.SetMaxLength(ctx, testAdmin, 2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustPublish(t, poems, "0x00000000000000000000000000000000000000AB", strings.Repeat("long verse ", 150))
	if err := poems.TransferAdmin(ctx, testAdmin, "0.0.3003"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := poems.SetPaused(ctx, "0.0.3003", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fixture := &mirrorFixture{}
	for _, event := range recorder.Events() {
		fixture.addEvent(t, event)
	}
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}

	if diff := cmp.Diff(poems.Snapshot(), indexer.Snapshot()); diff != "" {
		t.Fatalf("replayed state mismatch (-want +got):\n%s", diff)
	}
	token, ok := indexer.Poem(1)
	if !ok || token.Owner != "0x00000000000000000000000000000000000000ab" {
		t.Fatalf("unexpected replayed token: %+v", token)
	}
	stats := indexer.Stats()
	if stats.Applied != 5 || stats.Rejected != 0 || stats.LastSequence != 5 || stats.LastTopicSequence != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestIndexerWorksThroughLargeBacklog(t *testing.T) {
	fixture := &mirrorFixture{}
	for sequence := uint64(1); sequence <= 101; sequence++ {
		fixture.addEvent(t, registry.Event{
			Type:     registry.EventPoemPublished,
			Sequence: sequence,
			Caller:   "0.0.2002",
			TokenID:  sequence - 1,
			Text:     "verse " + strconv.FormatUint(sequence, 10),
		})
	}
	server := fixture.serve(t)
	indexer, err := New(Config{
		Network:          "testnet",
		MirrorBaseURL:    server.URL,
		TopicID:          testTopicID,
		Admin:            testAdmin,
		PageLimit:        1,
		MaxPagesPerCycle: 40,
	})
	if err != nil {
		t.Fatalf("unexpected indexer error: %v", err)
	}

	for cycle, expected := range []uint64{40, 80, 101} {
		if err := indexer.IndexOnce(t.Context()); err != nil {
			t.Fatalf("unexpected error in cycle %d: %v", cycle, err)
		}
		if indexer.LastSequence() != expected {
			t.Fatalf("cycle %d: expected sequence %d, got %d", cycle, expected, indexer.LastSequence())
		}
	}
	stats := indexer.Stats()
	if stats.Applied != 101 || stats.LastTopicSequence != 101 || stats.Pending != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	token, ok := indexer.Poem(100)
	if !ok || token.Text != "verse 101" {
		t.Fatalf("unexpected last token: %+v", token)
	}

	fixture.mutex.Lock()
	requests := fixture.requests
	fixture.mutex.Unlock()
	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected error on an idle topic: %v", err)
	}
	fixture.mutex.Lock()
	defer fixture.mutex.Unlock()
	if fixture.requests != requests+1 {
		t.Fatalf("expected one request for an idle topic, got %d", fixture.requests-requests)
	}
}

func TestIndexerAppliesResubmittedEvents(t *testing.T) {
	events := []registry.Event{
		{Type: registry.EventPoemPublished, Sequence: 1, Caller: "0.0.2002", TokenID: 0, Text: "first"},
		{Type: registry.EventPoemPublished, Sequence: 2, Caller: "0.0.2002", TokenID: 1, Text: "second"},
		{Type: registry.EventPoemPublished, Sequence: 3, Caller: "0.0.2002", TokenID: 2, Text: "third"},
	}
	fixture := &mirrorFixture{}
	fixture.addEvent(t, events[1])
	fixture.addEvent(t, events[2])
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	if stats := indexer.Stats(); stats.Pending != 2 || stats.LastSequence != 0 {
		t.Fatalf("expected both events to wait for sequence 1, got %+v", stats)
	}

	for _, event := range events {
		fixture.addEvent(t, event)
	}
	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	stats := indexer.Stats()
	if stats.Applied != 3 || stats.Duplicates != 2 || stats.Pending != 0 || stats.LastSequence != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestIndexerWaitsForMissingSequence(t *testing.T) {
	fixture := &mirrorFixture{}
	fixture.addEvent(t, registry.Event{Type: registry.EventPoemPublished, Sequence: 1, Caller: "0.0.2002", TokenID: 0, Text: "first"})
	fixture.addEvent(t, registry.Event{Type: registry.EventPoemPublished, Sequence: 3, Caller: "0.0.2002", TokenID: 2, Text: "third"})
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	if indexer.LastSequence() != 1 {
		t.Fatalf("expected replay to stop at 1, got %d", indexer.LastSequence())
	}
	if _, ok := indexer.Poem(2); ok {
		t.Fatal("expected token 2 to wait for the gap")
	}
	if stats := indexer.Stats(); stats.Pending != 1 {
		t.Fatalf("expected one pending event, got %+v", stats)
	}

	fixture.addEvent(t, registry.Event{Type: registry.EventPoemPublished, Sequence: 2, Caller: "0.0.2002", TokenID: 1, Text: "second"})
	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	if indexer.LastSequence() != 3 {
		t.Fatalf("expected replay to reach 3, got %d", indexer.LastSequence())
	}
	for id, text := range map[uint64]string{0: "first", 1: "second", 2: "third"} {
		token, ok := indexer.Poem(id)
		if !ok || token.Text != text {
			t.Fatalf("unexpected token %d: %+v", id, token)
		}
	}
}

func TestIndexerIgnoresDuplicatesAndMalformed(t *testing.T) {
	event := registry.Event{Type: registry.EventPoemPublished, Sequence: 1, Caller: "0.0.2002", TokenID: 0, Text: "once"}
	fixture := &mirrorFixture{}
	fixture.addEvent(t, event)
	fixture.addEvent(t, event)
	fixture.addPayload([]byte(`{"p":"hcs-20","op":"mint"}`))
	fixture.addPayload([]byte(`not json`))
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	stats := indexer.Stats()
	if stats.Applied != 1 || stats.Duplicates != 1 || stats.Malformed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(indexer.Snapshot().Tokens) != 1 {
		t.Fatal("expected a single token")
	}
}

func TestIndexerRejectsUnauthorizedEvents(t *testing.T) {
	fixture := &mirrorFixture{}
	fixture.addEvent(t, registry.Event{Type: registry.EventPausedUpdated, Sequence: 1, Caller: "0.0.6666", Paused: true})
	fixture.addEvent(t, registry.Event{Type: registry.EventPoemPublished, Sequence: 2, Caller: "0.0.2002", TokenID: 0, Text: "still open"})
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	snapshot := indexer.Snapshot()
	if snapshot.Settings.Paused {
		t.Fatal("unauthorized pause must not apply")
	}
	if len(snapshot.Tokens) != 1 || snapshot.Sequence != 2 {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if stats := indexer.Stats(); stats.Rejected != 1 || stats.Applied != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestIndexerReassemblesChunks(t *testing.T) {
	payload, err := anchor.EncodeEvent(registry.Event{
		Type:     registry.EventPoemPublished,
		Sequence: 1,
		Caller:   "0.0.2002",
		TokenID:  0,
		Text:     "split across two chunks",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	middle := len(payload) / 2
	initial := map[string]any{
		"account_id":              "0.0.1001",
		"transaction_valid_start": "1700000000.000000001",
		"nonce":                   0,
	}

	fixture := &mirrorFixture{}
	fixture.add(map[string]any{
		"message":    base64.StdEncoding.EncodeToString(payload[:middle]),
		"chunk_info": map[string]any{"initial_transaction_id": initial, "number": 1, "total": 2},
	})
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	if stats := indexer.Stats(); stats.PendingChunks != 1 || stats.Applied != 0 {
		t.Fatalf("expected partial chunk group, got %+v", stats)
	}

	fixture.add(map[string]any{
		"message":    base64.StdEncoding.EncodeToString(payload[middle:]),
		"chunk_info": map[string]any{"initial_transaction_id": initial, "number": 2, "total": 2},
	})
	if err := indexer.IndexOnce(t.Context()); err != nil {
		t.Fatalf("unexpected indexer run error: %v", err)
	}
	token, ok := indexer.Poem(0)
	if !ok || token.Text != "split across two chunks" {
		t.Fatalf("unexpected token: %+v", token)
	}
	if stats := indexer.Stats(); stats.PendingChunks != 0 {
		t.Fatalf("expected chunk group to be released, got %+v", stats)
	}
}

func TestIndexerPolling(t *testing.T) {
	fixture := &mirrorFixture{}
	fixture.addEvent(t, registry.Event{Type: registry.EventPoemPublished, Sequence: 1, Caller: "0.0.2002", TokenID: 0, Text: "polled"})
	indexer := newTestIndexer(t, fixture.serve(t))

	if err := indexer.StartPolling(t.Context(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected polling error: %v", err)
	}
	if err := indexer.StartPolling(t.Context(), 10*time.Millisecond); err == nil {
		t.Fatal("expected error when polling twice")
	}

	deadline := time.Now().Add(5 * time.Second)
	for indexer.LastSequence() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("polling did not index the topic")
		}
		time.Sleep(5 * time.Millisecond)
	}
	indexer.StopPolling()
	indexer.StopPolling()
}

func mustPublish(t *testing.T, poems *registry.Registry, caller, text string) uint64 {
	t.Helper()
	id, err := poems.Publish(context.Background(), caller, text)
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	return id
}
