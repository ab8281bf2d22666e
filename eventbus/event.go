package eventbus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a typed cross-node event. Identity fields (id, source,
// timestamp) are fixed at construction; the data map is open for
// producers to extend before dispatch, and the cancelled flag lets a
// consumer signal soft-cancellation to later listeners — the bus itself
// enforces nothing about it.
type Event struct {
	id        string
	eventType string
	source    string
	timestamp int64

	mu        sync.RWMutex
	cancelled bool
	data      map[string]any
}

// NewEvent creates an event originating from this node. The id is a
// fresh UUID and the timestamp is the current time in epoch millis.
func NewEvent(eventType, sourceServer string) *Event {
	return &Event{
		id:        uuid.NewString(),
		eventType: eventType,
		source:    sourceServer,
		timestamp: time.Now().UnixMilli(),
		data:      make(map[string]any),
	}
}

// ID returns the event's unique identifier.
func (e *Event) ID() string { return e.id }

// Type returns the event type used for listener routing.
func (e *Event) Type() string { return e.eventType }

// Source returns the originating node's identifier.
func (e *Event) Source() string { return e.source }

// Timestamp returns the creation time in epoch milliseconds.
func (e *Event) Timestamp() int64 { return e.timestamp }

// Set stores a data field.
func (e *Event) Set(key string, value any) {
	e.mu.Lock()
	e.data[key] = value
	e.mu.Unlock()
}

// Get reads a data field.
func (e *Event) Get(key string) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.data[key]
}

// GetString reads a data field as a string, or "" on mismatch.
func (e *Event) GetString(key string) string {
	s, _ := e.Get(key).(string)
	return s
}

// Data returns a copy of the data map.
func (e *Event) Data() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]any, len(e.data))
	for k, v := range e.data {
		out[k] = v
	}
	return out
}

// Cancel flips the cancelled flag.
func (e *Event) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

// Cancelled reports the cancelled flag.
func (e *Event) Cancelled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cancelled
}
