package service

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"unicode"

	"tripline/internal/events"
	"tripline/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInviteService(t *testing.T, bus *events.EventBus) (*InviteService, *store.Store) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	st, err := store.New(filepath.Join(t.TempDir(), "trips.db"), bus, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewInviteService(st, st, bus, &logger), st
}

func TestGenerateInviteCode(t *testing.T) {
	svc, _ := newInviteService(t, events.NewEventBus())
	ctx := context.Background()

	code, err := svc.GenerateInviteCode(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, unicode.IsDigit(r))
	}

	tripID, err := svc.ValidateInviteCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "trip-1", tripID)
}

func TestValidateInviteCodeFailures(t *testing.T) {
	svc, _ := newInviteService(t, events.NewEventBus())
	ctx := context.Background()

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.ValidateInviteCode(ctx, "000000")
		assert.ErrorIs(t, err, store.ErrInviteNotFound)
	})

	t.Run("deactivated code", func(t *testing.T) {
		code, err := svc.GenerateInviteCode(ctx, "trip-1")
		require.NoError(t, err)
		require.NoError(t, svc.DeactivateInviteCode(ctx, code))

		_, err = svc.ValidateInviteCode(ctx, code)
		assert.ErrorIs(t, err, ErrInviteInactive)
	})
}

func TestJoinTrip(t *testing.T) {
	bus := events.NewEventBus()
	svc, st := newInviteService(t, bus)
	ctx := context.Background()

	trip := testTrip("alice")
	require.NoError(t, st.CreateTrip(ctx, trip))

	code, err := svc.GenerateInviteCode(ctx, trip.ID)
	require.NoError(t, err)

	var joined []events.TripEventPayload
	bus.Subscribe(events.EventParticipantJoined, func(event *events.Event) error {
		var payload events.TripEventPayload
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		joined = append(joined, payload)
		return nil
	})

	got, err := svc.JoinTrip(ctx, code, "bob")
	require.NoError(t, err)
	assert.Contains(t, got.Participants, "alice")
	assert.Contains(t, got.Participants, "bob")

	stored, err := st.GetTrip(ctx, trip.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Participants, "bob")
	assert.Greater(t, stored.Version, int64(1), "joining bumps the trip version")

	require.Len(t, joined, 1)
	assert.Equal(t, trip.ID, joined[0].TripID)
	assert.Equal(t, "bob", joined[0].Actor)

	t.Run("joining twice is idempotent", func(t *testing.T) {
		again, err := svc.JoinTrip(ctx, code, "bob")
		require.NoError(t, err)
		assert.Equal(t, stored.Participants, again.Participants)
		assert.Len(t, joined, 1, "no second participant_joined event")
	})
}

func TestJoinTripInactiveCode(t *testing.T) {
	svc, st := newInviteService(t, events.NewEventBus())
	ctx := context.Background()

	trip := testTrip("alice")
	require.NoError(t, st.CreateTrip(ctx, trip))

	code, err := svc.GenerateInviteCode(ctx, trip.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateInviteCode(ctx, code))

	_, err = svc.JoinTrip(ctx, code, "bob")
	assert.ErrorIs(t, err, ErrInviteInactive)
}
