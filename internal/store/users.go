package store

import (
	"context"
	"database/sql"
	"fmt"

	"tripline/internal/models"
)

// CreateOrUpdateUser inserts the user or re-saves it on repeated login.
func (s *Store) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, provider, password_hash, is_guest, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             username = excluded.username,
             email = excluded.email,
             provider = excluded.provider,
             password_hash = excluded.password_hash`,
		user.ID, user.Username, user.Email, user.Provider, user.PasswordHash, user.IsGuest, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, provider, password_hash, is_guest, created_at
         FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, provider, password_hash, is_guest, created_at
         FROM users WHERE email = ?`, email))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	var email, passwordHash sql.NullString
	err := row.Scan(&user.ID, &user.Username, &email, &user.Provider, &passwordHash, &user.IsGuest, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	user.Email = email.String
	user.PasswordHash = passwordHash.String
	return &user, nil
}
