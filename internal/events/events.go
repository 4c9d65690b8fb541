package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTripCreated       = "trip_created"
	EventTripUpdated       = "trip_updated"
	EventTripDeleted       = "trip_deleted"
	EventLocksChanged      = "locks_changed"
	EventParticipantJoined = "participant_joined"
)

// TripEventPayload is the snapshot fanned out to subscribed clients. Doc is
// the full encoded trip document; Version lets receivers discard stale pushes.
type TripEventPayload struct {
	TripID  string          `json:"trip_id"`
	Version int64           `json:"version"`
	Actor   string          `json:"actor,omitempty"`
	Doc     json.RawMessage `json:"doc,omitempty"`
}

// LockEventPayload announces that the lock map for a trip changed.
type LockEventPayload struct {
	TripID   string `json:"trip_id"`
	ModuleID string `json:"module_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. Subscriptions can be
// cancelled, so short-lived consumers (one per open trip view) can detach.
type EventBus struct {
	subscribers map[string]map[int64]EventHandler
	nextID      int64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string]map[int64]EventHandler)}
}

// Subscribe registers a handler for a given event type and returns a cancel
// function that removes it.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[eventType] == nil {
		b.subscribers[eventType] = make(map[int64]EventHandler)
	}
	b.nextID++
	id := b.nextID
	b.subscribers[eventType][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers[eventType], id)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers[event.Type]))
	for _, h := range b.subscribers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
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
