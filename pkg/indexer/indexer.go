package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/anchor"
	"github.com/hashgraph-online/poetry-registry-go/pkg/mirror"
	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/hashgraph-online/poetry-registry-go/pkg/shared"
)

// Indexer rebuilds registry state from the anchor topic via the mirror node.
// Events apply strictly in sequence order. An event that arrives ahead of a
// missing sequence waits until the gap is filled.
type Indexer struct {
	mirrorClient *mirror.Client
	topicID      string
	pageLimit    int
	maxPages     int
	logger       *slog.Logger

	cycleMutex sync.Mutex

	mutex    sync.RWMutex
	state    registry.State
	stats    Stats
	pending  map[uint64]pendingEvent
	chunks   map[string]*chunkGroup
	lastSeen int64

	pollStopChannel chan struct{}
	pollDoneChannel chan struct{}
}

// New creates a mirror-backed Indexer.
func New(config Config) (*Indexer, error) {
	network, err := shared.NormalizeNetwork(config.Network)
	if err != nil {
		return nil, err
	}
	topicID, err := shared.NormalizeEntityID(config.TopicID)
	if err != nil {
		return nil, fmt.Errorf("anchor topic ID: %w", err)
	}
	admin, err := registry.NormalizeAccount(config.Admin)
	if err != nil {
		return nil, fmt.Errorf("indexer admin: %w", err)
	}

	mirrorClient, err := mirror.NewClient(mirror.Config{
		Network: network,
		BaseURL: config.MirrorBaseURL,
		APIKey:  config.MirrorAPIKey,
	})
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(config.Name)
	if name == "" {
		name = registry.DefaultName
	}
	symbol := strings.TrimSpace(config.Symbol)
	if symbol == "" {
		symbol = registry.DefaultSymbol
	}
	pageLimit := config.PageLimit
	if pageLimit <= 0 {
		pageLimit = defaultPageLimit
	}
	maxPages := config.MaxPagesPerCycle
	if maxPages <= 0 {
		maxPages = defaultMaxPagesPerCycle
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Indexer{
		mirrorClient: mirrorClient,
		topicID:      topicID,
		pageLimit:    pageLimit,
		maxPages:     maxPages,
		logger:       logger.With("component", "indexer", "topic_id", topicID),
		state: registry.State{
			Name:   name,
			Symbol: symbol,
			Settings: registry.Settings{
				MaxTextLength: registry.DefaultMaxTextLength,
				Admin:         admin,
			},
			Tokens: map[uint64]registry.Token{},
		},
		pending: map[uint64]pendingEvent{},
		chunks:  map[string]*chunkGroup{},
	}, nil
}

// TopicID returns the indexed anchor topic.
func (indexer *Indexer) TopicID() string {
	return indexer.topicID
}

// Snapshot returns a deep copy of the replayed state.
func (indexer *Indexer) Snapshot() registry.State {
	indexer.mutex.RLock()
	defer indexer.mutex.RUnlock()

	cloned := indexer.state
	cloned.Tokens = make(map[uint64]registry.Token, len(indexer.state.Tokens))
	for id, token := range indexer.state.Tokens {
		cloned.Tokens[id] = token
	}
	return cloned
}

// Poem returns a replayed token.
func (indexer *Indexer) Poem(id uint64) (registry.Token, bool) {
	indexer.mutex.RLock()
	defer indexer.mutex.RUnlock()
	token, ok := indexer.state.Tokens[id]
	return token, ok
}

// LastSequence returns the highest registry sequence applied without gaps.
func (indexer *Indexer) LastSequence() uint64 {
	indexer.mutex.RLock()
	defer indexer.mutex.RUnlock()
	return indexer.state.Sequence
}

// Stats returns replay counters.
func (indexer *Indexer) Stats() Stats {
	indexer.mutex.RLock()
	defer indexer.mutex.RUnlock()
	stats := indexer.stats
	stats.Pending = len(indexer.pending)
	stats.PendingChunks = len(indexer.chunks)
	stats.LastSequence = indexer.state.Sequence
	stats.LastTopicSequence = indexer.lastSeen
	return stats
}

// VerifyTopic checks that the topic exists and carries the anchor memo of
// this collection. A topic without a submit key is accepted with a warning,
// since every anchored event is checked against the registry rules anyway.
func (indexer *Indexer) VerifyTopic(ctx context.Context) (mirror.TopicInfo, error) {
	info, err := indexer.mirrorClient.GetTopicInfo(ctx, indexer.topicID)
	if err != nil {
		return info, fmt.Errorf("failed to read topic %s: %w", indexer.topicID, err)
	}
	if info.Deleted {
		return info, fmt.Errorf("topic %s is deleted", indexer.topicID)
	}

	indexer.mutex.RLock()
	expected := anchor.BuildTopicMemo(indexer.state.Name)
	indexer.mutex.RUnlock()
	if info.Memo != expected {
		return info, fmt.Errorf("topic %s memo %q does not match %q", indexer.topicID, info.Memo, expected)
	}
	if len(info.SubmitKey) == 0 {
		indexer.logger.Warn("anchor topic has no submit key; any account can submit to it")
	}
	return info, nil
}

// IndexOnce reads topic messages newer than the last one seen and applies
// them. It reads at most maxPages pages; each page is applied before the next
// is requested, so a large backlog is worked through over several cycles.
func (indexer *Indexer) IndexOnce(ctx context.Context) error {
	indexer.cycleMutex.Lock()
	defer indexer.cycleMutex.Unlock()

	for page := 0; page < indexer.maxPages; page++ {
		indexer.mutex.RLock()
		after := indexer.lastSeen
		indexer.mutex.RUnlock()

		messages, more, err := indexer.mirrorClient.GetTopicMessagesAfter(ctx, indexer.topicID, after, indexer.pageLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch topic %s messages after %d: %w", indexer.topicID, after, err)
		}

		indexer.mutex.Lock()
		indexer.applyPageLocked(messages)
		indexer.mutex.Unlock()

		if !more {
			return nil
		}
	}
	indexer.logger.Debug("cycle page limit reached", "pages", indexer.maxPages, "last_topic_sequence", indexer.Stats().LastTopicSequence)
	return nil
}

func (indexer *Indexer) applyPageLocked(messages []mirror.TopicMessage) {
	for _, topicMessage := range messages {
		if topicMessage.SequenceNumber <= indexer.lastSeen {
			continue
		}
		indexer.lastSeen = topicMessage.SequenceNumber

		payload, complete, decodeErr := indexer.collectLocked(topicMessage)
		if decodeErr != nil {
			indexer.stats.Malformed++
			indexer.logger.Warn("skipping undecodable topic message", "topic_sequence", topicMessage.SequenceNumber, "error", decodeErr)
			continue
		}
		if !complete {
			continue
		}

		message, parseErr := anchor.DecodeMessage(payload)
		if parseErr != nil {
			indexer.stats.Malformed++
			indexer.logger.Warn("skipping invalid anchor message", "topic_sequence", topicMessage.SequenceNumber, "error", parseErr)
			continue
		}
		event, eventErr := message.ToEvent()
		if eventErr != nil {
			indexer.stats.Malformed++
			continue
		}

		indexer.enqueueLocked(event, topicMessage.ConsensusTimestamp)
	}

	indexer.drainLocked()
}

// StartPolling runs IndexOnce periodically until StopPolling is called or ctx is done.
func (indexer *Indexer) StartPolling(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	indexer.mutex.Lock()
	if indexer.pollStopChannel != nil {
		indexer.mutex.Unlock()
		return fmt.Errorf("indexer polling already running")
	}
	stopChannel := make(chan struct{})
	doneChannel := make(chan struct{})
	indexer.pollStopChannel = stopChannel
	indexer.pollDoneChannel = doneChannel
	indexer.mutex.Unlock()

	go func() {
		defer close(doneChannel)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		indexer.pollOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopChannel:
				return
			case <-ticker.C:
				indexer.pollOnce(ctx)
			}
		}
	}()

	return nil
}

// StopPolling stops an active polling loop and waits for it to exit.
func (indexer *Indexer) StopPolling() {
	indexer.mutex.Lock()
	stopChannel := indexer.pollStopChannel
	doneChannel := indexer.pollDoneChannel
	indexer.pollStopChannel = nil
	indexer.pollDoneChannel = nil
	indexer.mutex.Unlock()

	if stopChannel != nil {
		close(stopChannel)
	}
	if doneChannel != nil {
		<-doneChannel
	}
}

func (indexer *Indexer) pollOnce(ctx context.Context) {
	if err := indexer.IndexOnce(ctx); err != nil && ctx.Err() == nil {
		indexer.logger.Warn("indexing cycle failed", "error", err)
	}
}

// collectLocked returns the full payload once every chunk of a submission is present.
func (indexer *Indexer) collectLocked(topicMessage mirror.TopicMessage) ([]byte, bool, error) {
	data, err := mirror.DecodeMessageData(topicMessage)
	if err != nil {
		return nil, false, err
	}
	key := mirror.ChunkGroupKey(topicMessage)
	if key == "" {
		return data, true, nil
	}

	info := topicMessage.ChunkInfo
	if info.Number < 1 || info.Number > info.Total {
		return nil, false, fmt.Errorf("chunk %d out of range 1..%d", info.Number, info.Total)
	}
	group, exists := indexer.chunks[key]
	if !exists {
		group = &chunkGroup{total: info.Total, parts: map[int][]byte{}}
		indexer.chunks[key] = group
	}
	if group.total != info.Total {
		delete(indexer.chunks, key)
		return nil, false, fmt.Errorf("chunk total changed from %d to %d", group.total, info.Total)
	}
	group.parts[info.Number] = data
	if len(group.parts) < group.total {
		return nil, false, nil
	}

	delete(indexer.chunks, key)
	var buffer bytes.Buffer
	for number := 1; number <= group.total; number++ {
		buffer.Write(group.parts[number])
	}
	return buffer.Bytes(), true, nil
}

func (indexer *Indexer) enqueueLocked(event registry.Event, timestamp string) {
	if event.Sequence <= indexer.state.Sequence {
		indexer.stats.Duplicates++
		return
	}
	if _, exists := indexer.pending[event.Sequence]; exists {
		indexer.stats.Duplicates++
		return
	}
	indexer.pending[event.Sequence] = pendingEvent{event: event, timestamp: timestamp}
}

func (indexer *Indexer) drainLocked() {
	for {
		next, exists := indexer.pending[indexer.state.Sequence+1]
		if !exists {
			break
		}
		delete(indexer.pending, next.event.Sequence)

		if err := indexer.applyLocked(next.event); err != nil {
			indexer.stats.Rejected++
			indexer.logger.Warn(
				"anchored event rejected",
				"sequence", next.event.Sequence,
				"type", string(next.event.Type),
				"error", err,
			)
		} else {
			indexer.stats.Applied++
		}
		indexer.state.Sequence = next.event.Sequence
		indexer.stats.LastTimestamp = next.timestamp
	}

	if len(indexer.pending) > 0 {
		indexer.logger.Debug("waiting for missing sequence", "next", indexer.state.Sequence+1, "pending", len(indexer.pending))
	}
}

// applyLocked replays one event under the same rules the registry enforced.
func (indexer *Indexer) applyLocked(event registry.Event) error {
	caller, err := registry.NormalizeAccount(event.Caller)
	if err != nil {
		return err
	}
	settings := &indexer.state.Settings

	if event.Type == registry.EventPoemPublished {
		if settings.Paused {
			return registry.ErrPaused
		}
		if err := registry.ValidateText(event.Text, settings.MaxTextLength); err != nil {
			return err
		}
		if event.TokenID != indexer.state.NextID {
			return fmt.Errorf("token id %d does not follow %d", event.TokenID, indexer.state.NextID)
		}
		indexer.state.Tokens[event.TokenID] = registry.Token{ID: event.TokenID, Text: event.Text, Owner: caller}
		indexer.state.NextID++
		return nil
	}

	if caller != settings.Admin {
		return registry.ErrUnauthorized
	}
	switch event.Type {
	case registry.EventMaxLengthUpdated:
		if err := registry.ValidateMaxLength(event.MaxLength); err != nil {
			return err
		}
		settings.MaxTextLength = event.MaxLength
	case registry.EventPausedUpdated:
		settings.Paused = event.Paused
	case registry.EventAdminTransferred:
		newAdmin, err := registry.NormalizeAccount(event.NewAdmin)
		if err != nil {
			return err
		}
		settings.Admin = newAdmin
	default:
		return fmt.Errorf("unsupported event type %q", event.Type)
	}
	return nil
}
