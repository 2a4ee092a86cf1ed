package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventConnectivityChanged = "connectivity_changed"
	EventActionEnqueued      = "action_enqueued"
	EventActionRemoved       = "action_removed"
	EventSyncCompleted       = "sync_completed"
)

// ConnectivityPayload is published when the online flag flips.
type ConnectivityPayload struct {
	Online    bool      `json:"online"`
	CheckedAt time.Time `json:"checked_at"`
}

// ActionPayload describes a pending action entering or leaving the queue.
type ActionPayload struct {
	ActionID  string `json:"action_id"`
	Operation string `json:"operation"`
	Entity    string `json:"entity"`
	Endpoint  string `json:"endpoint"`
	Pending   int    `json:"pending"`
	Reason    string `json:"reason,omitempty"`
}

// SyncPayload summarizes a finished synchronization pass.
type SyncPayload struct {
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	DeadLettered int       `json:"dead_lettered"`
	Pending      int       `json:"pending"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Event represents a lightweight in-process notification.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into out.
func (e *Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for agent events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged to logger when it is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	b := &EventBus{subscribers: make(map[string][]EventHandler), logger: zerolog.Nop()}
	if logger != nil {
		b.logger = logger.With().Str("component", "events").Logger()
	}
	return b
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously on the publisher's goroutine.
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
