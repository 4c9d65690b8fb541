package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tripline/internal/domain"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrTripExists      = errors.New("trip already exists")
	ErrVersionConflict = errors.New("trip version conflict")
	ErrUserNotFound    = errors.New("user not found")
	ErrInviteNotFound  = errors.New("invite code not found")
)

// Store is the document store backing trips, users and invite codes. Every
// successful trip write publishes a change event so subscribed clients see
// the new snapshot.
type Store struct {
	db     *sql.DB
	bus    domain.EventPublisher
	logger *zerolog.Logger
}

func New(path string, bus domain.EventPublisher, logger *zerolog.Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("document store initialized")
	return &Store{db: db, bus: bus, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trips (
            id TEXT PRIMARY KEY,
            created_by TEXT NOT NULL,
            doc TEXT NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username TEXT NOT NULL,
            email TEXT,
            provider TEXT NOT NULL,
            password_hash TEXT,
            is_guest BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS invite_codes (
            code TEXT PRIMARY KEY,
            trip_id TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_trips_updated_at ON trips(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_created_by ON trips(created_by)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_invite_codes_trip_id ON invite_codes(trip_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec %q: %w", query, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish store event")
	}
}
