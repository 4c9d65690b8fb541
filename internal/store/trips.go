package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tripline/internal/codec"
	"tripline/internal/events"
	"tripline/internal/models"
)

func encodeTripDoc(trip *models.Trip) ([]byte, error) {
	doc, err := json.Marshal(codec.EncodeTrip(trip))
	if err != nil {
		return nil, fmt.Errorf("marshal trip doc: %w", err)
	}
	return doc, nil
}

func decodeTripDoc(doc []byte) (*models.Trip, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal trip doc: %w", err)
	}
	return codec.DecodeTrip(raw), nil
}

// CreateTrip inserts a new trip document at version 1 and fans out
// trip_created. No idempotence: a second call with the same id fails.
func (s *Store) CreateTrip(ctx context.Context, trip *models.Trip) error {
	trip.Version = 1
	doc, err := encodeTripDoc(trip)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trips (id, created_by, doc, updated_at, version) VALUES (?, ?, ?, ?, ?)`,
		trip.ID, trip.CreatedBy, string(doc), trip.UpdatedAt, trip.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create trip: %w", err)
	}

	s.publish(events.EventTripCreated, events.TripEventPayload{
		TripID:  trip.ID,
		Version: trip.Version,
		Actor:   trip.CreatedBy,
		Doc:     doc,
	})
	return nil
}

func (s *Store) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var doc string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, version FROM trips WHERE id = ?`, id,
	).Scan(&doc, &version)
	if err == sql.ErrNoRows {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	trip, err := decodeTripDoc([]byte(doc))
	if err != nil {
		return nil, err
	}
	trip.Version = version
	return trip, nil
}

// ListTripsForUser returns the trips where userID is owner or participant,
// newest update first. Participant membership lives inside the document, so
// filtering happens after decode, the way the original client filtered the
// unqueryable collection.
func (s *Store) ListTripsForUser(ctx context.Context, userID string) ([]*models.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc, version FROM trips ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	var trips []*models.Trip
	for rows.Next() {
		var doc string
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}

		trip, err := decodeTripDoc([]byte(doc))
		if err != nil {
			// Malformed documents are dropped from the result, not surfaced.
			s.logger.Warn().Err(err).Msg("dropping malformed trip document")
			continue
		}
		trip.Version = version

		if !trip.HasParticipant(userID) {
			continue
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// PutTrip overwrites the full document unconditionally and bumps the stored
// version. Returns the new version.
func (s *Store) PutTrip(ctx context.Context, trip *models.Trip) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM trips WHERE id = ?`, trip.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, ErrTripNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read trip version: %w", err)
	}

	trip.Version = current + 1
	trip.UpdatedAt = time.Now()
	doc, err := encodeTripDoc(trip)
	if err != nil {
		return 0, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE trips SET doc = ?, updated_at = ?, version = ? WHERE id = ?`,
		string(doc), trip.UpdatedAt, trip.Version, trip.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update trip: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trip update: %w", err)
	}

	s.publish(events.EventTripUpdated, events.TripEventPayload{
		TripID:  trip.ID,
		Version: trip.Version,
		Doc:     doc,
	})
	return trip.Version, nil
}

// UpdateTripDoc overwrites the document only if the stored version still
// equals expectedVersion. A concurrent writer makes this fail with
// ErrVersionConflict instead of silently clobbering the module array.
func (s *Store) UpdateTripDoc(ctx context.Context, trip *models.Trip, expectedVersion int64) (int64, error) {
	trip.Version = expectedVersion + 1
	trip.UpdatedAt = time.Now()
	doc, err := encodeTripDoc(trip)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET doc = ?, updated_at = ?, version = ? WHERE id = ? AND version = ?`,
		string(doc), trip.UpdatedAt, trip.Version, trip.ID, expectedVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update trip: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the trip is gone or someone got there first.
		var exists int
		if scanErr := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM trips WHERE id = ?`, trip.ID,
		).Scan(&exists); scanErr == nil && exists == 0 {
			return 0, ErrTripNotFound
		}
		return 0, ErrVersionConflict
	}

	s.publish(events.EventTripUpdated, events.TripEventPayload{
		TripID:  trip.ID,
		Version: trip.Version,
		Doc:     doc,
	})
	return trip.Version, nil
}

// DeleteTrip removes the document permanently. No soft delete, no tombstone.
func (s *Store) DeleteTrip(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}

	s.publish(events.EventTripDeleted, events.TripEventPayload{TripID: id})
	return nil
}
