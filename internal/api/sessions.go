package api

import (
	"context"
	"sync"
	"time"

	"tripline/internal/domain"
	"tripline/internal/events"
	"tripline/internal/service"
	"tripline/internal/worker"

	"github.com/rs/zerolog"
)

// SessionTracker is the lock-keeper hookup: sessions register so their held
// locks get heartbeats.
type SessionTracker interface {
	Track(sessionID string, source worker.HeldLockSource)
	Untrack(sessionID string)
}

// SessionManager lazily builds one SyncService per authenticated user and
// keeps it for the lifetime of the process. Each session owns its own trip
// projection; the event bus keeps them mutually consistent.
type SessionManager struct {
	store   domain.TripStore
	locks   domain.LockRepository
	bus     *events.EventBus
	tracker SessionTracker
	lockTTL time.Duration
	logger  *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*service.SyncService
}

func NewSessionManager(store domain.TripStore, locks domain.LockRepository, bus *events.EventBus, tracker SessionTracker, lockTTL time.Duration, logger *zerolog.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		locks:    locks,
		bus:      bus,
		tracker:  tracker,
		lockTTL:  lockTTL,
		logger:   logger,
		sessions: make(map[string]*service.SyncService),
	}
}

// Session returns the user's sync service, creating and loading it on first
// use.
func (m *SessionManager) Session(ctx context.Context, userID string) (*service.SyncService, error) {
	m.mu.Lock()
	if svc, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return svc, nil
	}
	m.mu.Unlock()

	svc := service.NewSyncService(userID, m.store, m.locks, m.bus, m.lockTTL, m.logger)
	if err := svc.LoadTrips(ctx); err != nil {
		svc.Close()
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		// Lost the race; keep the winner.
		svc.Close()
		return existing, nil
	}
	m.sessions[userID] = svc
	if m.tracker != nil {
		m.tracker.Track(userID, svc)
	}
	return svc, nil
}

// CloseSession tears down one user's session, releasing its locks.
func (m *SessionManager) CloseSession(userID string) {
	m.mu.Lock()
	svc, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	if m.tracker != nil {
		m.tracker.Untrack(userID)
	}
	svc.Close()
}

// CloseAll tears down every session. Called on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*service.SyncService)
	m.mu.Unlock()

	for userID, svc := range sessions {
		if m.tracker != nil {
			m.tracker.Untrack(userID)
		}
		svc.Close()
	}
}
