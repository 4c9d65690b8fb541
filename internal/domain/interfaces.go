package domain

import (
	"context"
	"time"

	"tripline/internal/models"
)

// TripStore is the remote document store for trip aggregates. It is the
// source of truth; in-memory caches are projections overwritten wholesale.
type TripStore interface {
	CreateTrip(ctx context.Context, trip *models.Trip) error
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	ListTripsForUser(ctx context.Context, userID string) ([]*models.Trip, error)
	// PutTrip overwrites the full document and bumps the version.
	PutTrip(ctx context.Context, trip *models.Trip) (int64, error)
	// UpdateTripDoc overwrites the document only when the stored version
	// matches expectedVersion; otherwise it returns ErrVersionConflict.
	UpdateTripDoc(ctx context.Context, trip *models.Trip, expectedVersion int64) (int64, error)
	DeleteTrip(ctx context.Context, id string) error
}

type UserStore interface {
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type InviteStore interface {
	CreateInviteCode(ctx context.Context, invite *models.InviteCode) error
	GetInviteCode(ctx context.Context, code string) (*models.InviteCode, error)
	DeactivateInviteCode(ctx context.Context, code string) error
}

// LockRepository holds the ephemeral section locks of a trip. Entries expire
// after their TTL unless refreshed; a crashed client's lock self-clears.
type LockRepository interface {
	Lock(ctx context.Context, tripID, moduleID, userID string, ttl time.Duration) error
	Unlock(ctx context.Context, tripID, moduleID string) error
	Refresh(ctx context.Context, tripID, moduleID string, ttl time.Duration) error
	Locks(ctx context.Context, tripID string) (map[string]string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncService mediates all trip reads and writes for one signed-in user and
// reconciles its local projection with pushed snapshots.
type SyncService interface {
	UserID() string
	LoadTrips(ctx context.Context) error
	Trips() []*models.Trip
	TripByID(tripID string) (*models.Trip, bool)
	CreateTrip(ctx context.Context, trip *models.Trip) error
	UpdateTrip(ctx context.Context, trip *models.Trip) error
	DeleteTrip(ctx context.Context, tripID string) error
	AddModule(ctx context.Context, tripID string, module models.Module) error
	UpdateModule(ctx context.Context, tripID string, module models.Module) error
	UpdateModulesBatch(ctx context.Context, tripID string, modules []models.Module) error
	ToggleModuleCompletion(ctx context.Context, tripID, moduleID string) error
	DeleteModule(ctx context.Context, tripID, moduleID string) error
	LockSection(ctx context.Context, tripID, moduleID string) error
	UnlockSection(ctx context.Context, tripID, moduleID string) error
	ListenToSectionLocks(ctx context.Context, tripID string) func()
	IsSectionLocked(moduleID, byUserID string) bool
	HeldLocks() map[string]string
	Close()
}

type UserService interface {
	SignUp(ctx context.Context, email, password, username string) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	SignInWithOAuth(ctx context.Context, code string) (*models.User, error)
	JoinAsGuest(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type InviteService interface {
	GenerateInviteCode(ctx context.Context, tripID string) (string, error)
	ValidateInviteCode(ctx context.Context, code string) (string, error)
	DeactivateInviteCode(ctx context.Context, code string) error
	JoinTrip(ctx context.Context, code, userID string) (*models.Trip, error)
}
