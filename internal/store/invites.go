package store

import (
	"context"
	"database/sql"
	"fmt"

	"tripline/internal/models"
)

// CreateInviteCode stores the code, replacing any previous document with the
// same code. Concurrent generators can collide; last writer wins.
func (s *Store) CreateInviteCode(ctx context.Context, invite *models.InviteCode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO invite_codes (code, trip_id, is_active, created_at) VALUES (?, ?, ?, ?)`,
		invite.Code, invite.TripID, invite.IsActive, invite.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invite code: %w", err)
	}
	return nil
}

func (s *Store) GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error) {
	var invite models.InviteCode
	err := s.db.QueryRowContext(ctx,
		`SELECT code, trip_id, is_active, created_at FROM invite_codes WHERE code = ?`, code,
	).Scan(&invite.Code, &invite.TripID, &invite.IsActive, &invite.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite code: %w", err)
	}
	return &invite, nil
}

func (s *Store) DeactivateInviteCode(ctx context.Context, code string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE invite_codes SET is_active = 0 WHERE code = ?`, code,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate invite code: %w", err)
	}
	return nil
}
