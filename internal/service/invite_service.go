package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"tripline/internal/domain"
	"tripline/internal/events"
	"tripline/internal/models"
	"tripline/internal/store"

	"github.com/rs/zerolog"
)

// ErrInviteInactive is returned for codes that exist but were deactivated.
var ErrInviteInactive = errors.New("invite code is inactive")

// InviteService issues and redeems the 6-digit codes that let other users
// join a trip. Codes are random digits with no uniqueness check: a collision
// silently repoints the code to the newer trip, matching the store's
// last-writer-wins insert.
type InviteService struct {
	invites domain.InviteStore
	trips   domain.TripStore
	bus     domain.EventPublisher
	logger  zerolog.Logger
}

func NewInviteService(invites domain.InviteStore, trips domain.TripStore, bus domain.EventPublisher, logger *zerolog.Logger) *InviteService {
	return &InviteService{
		invites: invites,
		trips:   trips,
		bus:     bus,
		logger:  logger.With().Str("component", "invites").Logger(),
	}
}

// GenerateInviteCode creates and stores a fresh active code for the trip.
func (s *InviteService) GenerateInviteCode(ctx context.Context, tripID string) (string, error) {
	code, err := randomDigits(models.InviteCodeDigits)
	if err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}

	invite := &models.InviteCode{
		Code:      code,
		TripID:    tripID,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := s.invites.CreateInviteCode(ctx, invite); err != nil {
		return "", fmt.Errorf("failed to store invite code: %w", err)
	}

	s.logger.Info().Str("trip_id", tripID).Msg("invite code generated")
	return code, nil
}

// ValidateInviteCode resolves a code to its trip id. Unknown and deactivated
// codes both fail validation.
func (s *InviteService) ValidateInviteCode(ctx context.Context, code string) (string, error) {
	invite, err := s.invites.GetInviteCode(ctx, code)
	if err != nil {
		return "", err
	}
	if !invite.IsActive {
		return "", ErrInviteInactive
	}
	return invite.TripID, nil
}

func (s *InviteService) DeactivateInviteCode(ctx context.Context, code string) error {
	return s.invites.DeactivateInviteCode(ctx, code)
}

// JoinTrip redeems a code for a user. Joining is idempotent: an existing
// participant gets the trip back unchanged. The participant append is
// version-guarded and retried once, so two users redeeming concurrently both
// land in the participant list.
func (s *InviteService) JoinTrip(ctx context.Context, code, userID string) (*models.Trip, error) {
	tripID, err := s.ValidateInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		trip, err := s.trips.GetTrip(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if trip.HasParticipant(userID) {
			return trip, nil
		}

		trip.Participants = append(trip.Participants, userID)
		version, err := s.trips.UpdateTripDoc(ctx, trip, trip.Version)
		if err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				continue
			}
			return nil, err
		}
		trip.Version = version

		if err := s.bus.PublishJSON(events.EventParticipantJoined, events.TripEventPayload{
			TripID: tripID, Version: version, Actor: userID,
		}); err != nil {
			s.logger.Warn().Err(err).Str("trip_id", tripID).Msg("publish participant_joined failed")
		}

		s.logger.Info().Str("trip_id", tripID).Str("user_id", userID).Msg("participant joined")
		return trip, nil
	}

	return nil, store.ErrVersionConflict
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(10)
	buf := make([]byte, n)
	for i := range buf {
		d, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = '0' + byte(d.Int64())
	}
	return string(buf), nil
}
