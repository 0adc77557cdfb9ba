package registry

import "sync"

type EventType string

const (
	EventPoemPublished    EventType = "poem_published"
	EventMaxLengthUpdated EventType = "max_length_updated"
	EventPausedUpdated    EventType = "paused_updated"
	EventAdminTransferred EventType = "admin_transferred"
)

// Event describes one committed mutation. Only the fields relevant to Type are set.
type Event struct {
	Type      EventType `json:"type"`
	Sequence  uint64    `json:"sequence"`
	Caller    string    `json:"caller"`
	TokenID   uint64    `json:"tokenId"`
	Text      string    `json:"text,omitempty"`
	MaxLength int       `json:"maxLength,omitempty"`
	Paused    bool      `json:"paused"`
	NewAdmin  string    `json:"newAdmin,omitempty"`
}

// EventHandler receives committed events in sequence order. Handlers must not
// call mutating registry methods synchronously.
type EventHandler func(Event)

// EventRecorder collects events in memory.
type EventRecorder struct {
	mutex  sync.Mutex
	events []Event
}

// Handle appends the event. It is an EventHandler.
func (recorder *EventRecorder) Handle(event Event) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.events = append(recorder.events, event)
}

// Events returns a copy of the recorded events.
func (recorder *EventRecorder) Events() []Event {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return append([]Event(nil), recorder.events...)
}
