package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus()

	var received []*Event
	bus.Subscribe(EventTripUpdated, func(e *Event) error {
		received = append(received, e)
		return nil
	})

	err := bus.PublishJSON(EventTripUpdated, TripEventPayload{TripID: "t1", Version: 2})
	require.NoError(t, err)

	require.Len(t, received, 1)
	var payload TripEventPayload
	require.NoError(t, json.Unmarshal(received[0].Payload, &payload))
	assert.Equal(t, "t1", payload.TripID)
	assert.Equal(t, int64(2), payload.Version)
	assert.False(t, received[0].CreatedAt.IsZero())
}

func TestEventBusTypeIsolation(t *testing.T) {
	bus := NewEventBus()

	updated := 0
	deleted := 0
	bus.Subscribe(EventTripUpdated, func(*Event) error { updated++; return nil })
	bus.Subscribe(EventTripDeleted, func(*Event) error { deleted++; return nil })

	bus.Publish(&Event{Type: EventTripUpdated})
	bus.Publish(&Event{Type: EventTripUpdated})

	assert.Equal(t, 2, updated)
	assert.Equal(t, 0, deleted)
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	cancel := bus.Subscribe(EventLocksChanged, func(*Event) error { calls++; return nil })

	bus.Publish(&Event{Type: EventLocksChanged})
	cancel()
	bus.Publish(&Event{Type: EventLocksChanged})

	assert.Equal(t, 1, calls)
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventTripCreated, nil))
}
