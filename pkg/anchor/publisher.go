package anchor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
	flushPollInterval  = 10 * time.Millisecond
)

type PublisherConfig struct {
	Submitter   Submitter
	TopicID     string
	Logger      *slog.Logger
	MaxAttempts int
	RetryDelay  time.Duration
	// Journal, when set, records confirmed sequences so Resume can requeue
	// events that were never anchored.
	Journal registry.EventJournal
}

// PublisherStats counts submission outcomes.
type PublisherStats struct {
	Queued    int    `json:"queued"`
	Submitted int    `json:"submitted"`
	Failed    int    `json:"failed"`
	LastSeq   uint64 `json:"lastSeq"`
	Resumed   int    `json:"resumed"`
	Anchored  uint64 `json:"anchored"`
}

// Publisher anchors registry events in commit order from a background worker.
// Handle never blocks, so it is safe to register as a registry event handler.
type Publisher struct {
	submitter   Submitter
	topicID     string
	logger      *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
	journal     registry.EventJournal

	mutex    sync.Mutex
	queue    []registry.Event
	inFlight bool
	closed   bool
	stats    PublisherStats
	// anchored is the highest sequence confirmed without gaps; confirmed
	// holds sequences above it that succeeded out of order.
	anchored  uint64
	confirmed map[uint64]bool

	signal chan struct{}
}

// NewPublisher creates a Publisher. Call Run to start submitting.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if config.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	topicID := strings.TrimSpace(config.TopicID)
	if topicID == "" {
		return nil, fmt.Errorf("anchor topic ID is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Publisher{
		submitter:   config.Submitter,
		topicID:     topicID,
		logger:      logger.With("component", "anchor", "topic_id", topicID),
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		journal:     config.Journal,
		confirmed:   map[uint64]bool{},
		signal:      make(chan struct{}, 1),
	}, nil
}

// Handle queues event for submission.
func (publisher *Publisher) Handle(event registry.Event) {
	publisher.mutex.Lock()
	if publisher.closed {
		publisher.mutex.Unlock()
		publisher.logger.Warn("event dropped after close", "sequence", event.Sequence)
		return
	}
	publisher.queue = append(publisher.queue, event)
	publisher.stats.Queued++
	publisher.mutex.Unlock()

	publisher.notify()
}

// Resume queues the journaled events the topic has not confirmed yet. It is
// called before new events are committed, or again later to retry events
// that were given up on.
func (publisher *Publisher) Resume(ctx context.Context) (int, error) {
	if publisher.journal == nil {
		return 0, nil
	}
	anchored, err := publisher.journal.AnchoredSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("read anchored sequence: %w", err)
	}
	events, err := publisher.journal.EventsAfter(ctx, anchored)
	if err != nil {
		return 0, fmt.Errorf("read event journal: %w", err)
	}

	publisher.mutex.Lock()
	if publisher.closed {
		publisher.mutex.Unlock()
		return 0, fmt.Errorf("publisher is closed")
	}
	if anchored > publisher.anchored {
		publisher.anchored = anchored
		for sequence := range publisher.confirmed {
			if sequence <= anchored {
				delete(publisher.confirmed, sequence)
			}
		}
	}
	queued := make(map[uint64]bool, len(publisher.queue))
	for _, event := range publisher.queue {
		queued[event.Sequence] = true
	}
	resumed := 0
	for _, event := range events {
		if event.Sequence <= publisher.anchored || queued[event.Sequence] || publisher.confirmed[event.Sequence] {
			continue
		}
		publisher.queue = append(publisher.queue, event)
		queued[event.Sequence] = true
		resumed++
	}
	sort.SliceStable(publisher.queue, func(left, right int) bool {
		return publisher.queue[left].Sequence < publisher.queue[right].Sequence
	})
	publisher.stats.Queued += resumed
	publisher.stats.Resumed += resumed
	publisher.stats.Anchored = publisher.anchored
	publisher.mutex.Unlock()

	if resumed > 0 {
		publisher.logger.Info("resuming unanchored events", "count", resumed, "anchored", anchored)
		publisher.notify()
	}
	return resumed, nil
}

// Run submits queued events until ctx is done, or until Close was called and the queue is empty.
func (publisher *Publisher) Run(ctx context.Context) error {
	for {
		event, ok, closed := publisher.next()
		if !ok {
			if closed {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-publisher.signal:
			}
			continue
		}
		publisher.submit(ctx, event)
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (publisher *Publisher) Close() {
	publisher.mutex.Lock()
	publisher.closed = true
	publisher.mutex.Unlock()
	publisher.notify()
}

// Flush waits until every queued event has been submitted or given up on.
func (publisher *Publisher) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPollInterval)
	defer ticker.Stop()
	for {
		publisher.mutex.Lock()
		idle := len(publisher.queue) == 0 && !publisher.inFlight
		publisher.mutex.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a copy of the submission counters.
func (publisher *Publisher) Stats() PublisherStats {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	return publisher.stats
}

func (publisher *Publisher) next() (registry.Event, bool, bool) {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	if len(publisher.queue) == 0 {
		return registry.Event{}, false, publisher.closed
	}
	event := publisher.queue[0]
	publisher.queue = publisher.queue[1:]
	publisher.inFlight = true
	return event, true, publisher.closed
}

func (publisher *Publisher) submit(ctx context.Context, event registry.Event) {
	var lastErr error
	for attempt := 1; attempt <= publisher.maxAttempts; attempt++ {
		result, err := publisher.submitter.SubmitEvent(ctx, publisher.topicID, event)
		if err == nil {
			publisher.logger.Info(
				"event anchored",
				"sequence", event.Sequence,
				"type", string(event.Type),
				"transaction_id", result.TransactionID,
				"topic_sequence", result.SequenceNumber,
			)
			publisher.finish(ctx, event, true)
			return
		}
		lastErr = err
		publisher.logger.Warn("anchor attempt failed", "sequence", event.Sequence, "attempt", attempt, "error", err)
		if attempt == publisher.maxAttempts || ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(publisher.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	publisher.logger.Error("event not anchored", "sequence", event.Sequence, "error", lastErr)
	publisher.finish(ctx, event, false)
}

func (publisher *Publisher) finish(ctx context.Context, event registry.Event, success bool) {
	publisher.mutex.Lock()
	if !success {
		publisher.stats.Failed++
		publisher.inFlight = false
		publisher.mutex.Unlock()
		return
	}
	publisher.stats.Submitted++
	publisher.stats.LastSeq = event.Sequence
	advanced := false
	if publisher.journal != nil && event.Sequence > publisher.anchored {
		publisher.confirmed[event.Sequence] = true
		for publisher.confirmed[publisher.anchored+1] {
			delete(publisher.confirmed, publisher.anchored+1)
			publisher.anchored++
			advanced = true
		}
	}
	anchored := publisher.anchored
	publisher.stats.Anchored = anchored
	publisher.mutex.Unlock()

	// inFlight stays set until the cursor is stored so Flush covers it.
	if advanced && publisher.journal != nil {
		if err := publisher.journal.MarkAnchored(context.WithoutCancel(ctx), anchored); err != nil {
			publisher.logger.Warn("failed to record anchored sequence", "sequence", anchored, "error", err)
		}
	}
	publisher.mutex.Lock()
	publisher.inFlight = false
	publisher.mutex.Unlock()
}

func (publisher *Publisher) notify() {
	select {
	case publisher.signal <- struct{}{}:
	default:
	}
}
