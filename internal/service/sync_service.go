package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"tripline/internal/codec"
	"tripline/internal/domain"
	"tripline/internal/events"
	"tripline/internal/metrics"
	"tripline/internal/models"
	"tripline/internal/store"

	"github.com/rs/zerolog"
)

// ErrModuleNotFound is returned when a module id is absent from a trip.
var ErrModuleNotFound = errors.New("module not found in trip")

// closeTimeout bounds lock cleanup during session teardown.
const closeTimeout = 5 * time.Second

// SyncService is the single point of contact with the document store for one
// signed-in user. It owns an in-memory projection of that user's trips and of
// the section locks of the currently watched trip, and reconciles the
// projection against pushed snapshots by comparing per-trip versions: a
// snapshot applies only when its version is strictly newer than the cached
// one, so a client's own write echo and out-of-order pushes are no-ops.
type SyncService struct {
	userID  string
	store   domain.TripStore
	locks   domain.LockRepository
	bus     *events.EventBus
	lockTTL time.Duration
	logger  zerolog.Logger

	mu      sync.RWMutex
	trips   []*models.Trip
	lockMap map[string]string // moduleID -> holder, for the watched trip
	held    map[string]heldLock
	cancels []func()
}

type heldLock struct {
	tripID   string
	moduleID string
}

func NewSyncService(userID string, tripStore domain.TripStore, locks domain.LockRepository, bus *events.EventBus, lockTTL time.Duration, logger *zerolog.Logger) *SyncService {
	if lockTTL <= 0 {
		lockTTL = models.DefaultLockTTLSeconds * time.Second
	}
	return &SyncService{
		userID:  userID,
		store:   tripStore,
		locks:   locks,
		bus:     bus,
		lockTTL: lockTTL,
		logger:  logger.With().Str("component", "sync").Str("user_id", userID).Logger(),
		lockMap: make(map[string]string),
		held:    make(map[string]heldLock),
	}
}

func (s *SyncService) UserID() string { return s.userID }

// LoadTrips replaces the whole trip projection from the store and subscribes
// to trip change events. On a load error the previous projection stays
// untouched; the live subscription keeps delivering newer snapshots.
func (s *SyncService) LoadTrips(ctx context.Context) error {
	s.subscribeOnce()

	trips, err := s.store.ListTripsForUser(ctx, s.userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("load trips failed, keeping cached list")
		metrics.IncSyncOp("load_trips", "error")
		return err
	}

	s.mu.Lock()
	s.trips = trips
	s.sortTripsLocked()
	s.mu.Unlock()

	metrics.IncSyncOp("load_trips", "ok")
	return nil
}

func (s *SyncService) subscribeOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cancels) > 0 {
		return
	}
	s.cancels = append(s.cancels,
		s.bus.Subscribe(events.EventTripCreated, s.onTripEvent),
		s.bus.Subscribe(events.EventTripUpdated, s.onTripEvent),
		s.bus.Subscribe(events.EventTripDeleted, s.onTripDeleted),
	)
}

func (s *SyncService) onTripEvent(event *events.Event) error {
	var payload events.TripEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error().Err(err).Msg("bad trip event payload")
		return err
	}
	if len(payload.Doc) == 0 {
		return nil
	}

	trip, err := decodeTripSnapshot(payload.Doc)
	if err != nil {
		s.logger.Error().Err(err).Str("trip_id", payload.TripID).Msg("bad trip snapshot")
		return err
	}
	trip.Version = payload.Version

	s.applySnapshot(trip)
	return nil
}

func decodeTripSnapshot(doc json.RawMessage) (*models.Trip, error) {
	var raw map[string]any
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, err
	}
	return codec.DecodeTrip(raw), nil
}

// applySnapshot reconciles a pushed snapshot against the projection. Stale
// versions are dropped; a snapshot that no longer lists this user removes the
// trip from the projection.
func (s *SyncService) applySnapshot(trip *models.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.tripIndexLocked(trip.ID)

	if !trip.HasParticipant(s.userID) {
		if idx >= 0 {
			s.trips = append(s.trips[:idx], s.trips[idx+1:]...)
		}
		return
	}

	if idx >= 0 {
		if trip.Version <= s.trips[idx].Version {
			metrics.IncStaleSnapshot()
			s.logger.Debug().
				Str("trip_id", trip.ID).
				Int64("snapshot_version", trip.Version).
				Int64("cached_version", s.trips[idx].Version).
				Msg("dropping stale trip snapshot")
			return
		}
		s.trips[idx] = trip
	} else {
		s.trips = append(s.trips, trip)
	}
	s.sortTripsLocked()
}

func (s *SyncService) onTripDeleted(event *events.Event) error {
	var payload events.TripEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.tripIndexLocked(payload.TripID); idx >= 0 {
		s.trips = append(s.trips[:idx], s.trips[idx+1:]...)
	}
	return nil
}

func (s *SyncService) tripIndexLocked(tripID string) int {
	for i := range s.trips {
		if s.trips[i].ID == tripID {
			return i
		}
	}
	return -1
}

func (s *SyncService) sortTripsLocked() {
	sort.SliceStable(s.trips, func(i, j int) bool {
		return s.trips[i].UpdatedAt.After(s.trips[j].UpdatedAt)
	})
}

// Trips returns the current projection, newest update first.
func (s *SyncService) Trips() []*models.Trip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*models.Trip(nil), s.trips...)
}

func (s *SyncService) TripByID(tripID string) (*models.Trip, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.tripIndexLocked(tripID); idx >= 0 {
		return s.trips[idx], true
	}
	return nil, false
}

// CreateTrip writes the full document, making sure the owner is always in the
// participant set, then reloads the trip list. Not idempotent: two calls make
// two trips.
func (s *SyncService) CreateTrip(ctx context.Context, trip *models.Trip) error {
	if !containsString(trip.Participants, trip.CreatedBy) {
		trip.Participants = append(trip.Participants, trip.CreatedBy)
	}

	if err := s.store.CreateTrip(ctx, trip); err != nil {
		s.logger.Error().Err(err).Str("trip_id", trip.ID).Msg("create trip failed")
		metrics.IncSyncOp("create_trip", "error")
		return err
	}

	metrics.IncSyncOp("create_trip", "ok")
	return s.LoadTrips(ctx)
}

// UpdateTrip overwrites the full trip document and refreshes the projection
// with the version the store assigned.
func (s *SyncService) UpdateTrip(ctx context.Context, trip *models.Trip) error {
	version, err := s.store.PutTrip(ctx, trip)
	if err != nil {
		s.logger.Error().Err(err).Str("trip_id", trip.ID).Msg("update trip failed")
		metrics.IncSyncOp("update_trip", "error")
		s.resyncTrip(ctx, trip.ID)
		return err
	}

	trip.Version = version
	s.applySnapshot(trip)
	metrics.IncSyncOp("update_trip", "ok")
	return nil
}

// DeleteTrip removes the trip locally first, then remotely. A failed remote
// delete leaves the projection diverged until the next full reload; there is
// deliberately no rollback.
func (s *SyncService) DeleteTrip(ctx context.Context, tripID string) error {
	s.mu.Lock()
	if idx := s.tripIndexLocked(tripID); idx >= 0 {
		s.trips = append(s.trips[:idx], s.trips[idx+1:]...)
	}
	s.mu.Unlock()

	if err := s.store.DeleteTrip(ctx, tripID); err != nil {
		s.logger.Error().Err(err).Str("trip_id", tripID).Msg("delete trip failed")
		metrics.IncSyncOp("delete_trip", "error")
		return err
	}

	metrics.IncSyncOp("delete_trip", "ok")
	return nil
}

// AddModule appends a module to the trip's module array. The append is a
// read-modify-write against the latest stored document, retried once on a
// version conflict so concurrent appenders do not drop each other's modules.
func (s *SyncService) AddModule(ctx context.Context, tripID string, module models.Module) error {
	now := time.Now()
	module.CreatedAt = now
	module.UpdatedAt = now

	mutate := func(trip *models.Trip) error {
		trip.Modules = append(trip.Modules, module)
		return nil
	}

	if err := s.mutateTrip(ctx, tripID, "add_module", mutate); err != nil {
		return err
	}
	return nil
}

// UpdateModule replaces one module by id via read-modify-write of the full
// module array, guarded by the stored version.
func (s *SyncService) UpdateModule(ctx context.Context, tripID string, module models.Module) error {
	mutate := func(trip *models.Trip) error {
		idx := trip.ModuleByID(module.ID)
		if idx < 0 {
			return ErrModuleNotFound
		}
		module.UpdatedAt = time.Now()
		trip.Modules[idx] = module
		return nil
	}

	return s.mutateTrip(ctx, tripID, "update_module", mutate)
}

// UpdateModulesBatch replaces the whole module array. The projection mutates
// optimistically before the write; a failed write forces a single-trip resync
// back to ground truth.
func (s *SyncService) UpdateModulesBatch(ctx context.Context, tripID string, modules []models.Module) error {
	mutate := func(trip *models.Trip) error {
		trip.Modules = append([]models.Module(nil), modules...)
		return nil
	}

	s.mutateCached(tripID, mutate)
	return s.mutateTrip(ctx, tripID, "update_modules_batch", mutate)
}

func (s *SyncService) ToggleModuleCompletion(ctx context.Context, tripID, moduleID string) error {
	mutate := func(trip *models.Trip) error {
		idx := trip.ModuleByID(moduleID)
		if idx < 0 {
			return ErrModuleNotFound
		}
		trip.Modules[idx].IsCompleted = !trip.Modules[idx].IsCompleted
		trip.Modules[idx].UpdatedAt = time.Now()
		return nil
	}

	s.mutateCached(tripID, mutate)
	return s.mutateTrip(ctx, tripID, "toggle_module", mutate)
}

func (s *SyncService) DeleteModule(ctx context.Context, tripID, moduleID string) error {
	mutate := func(trip *models.Trip) error {
		idx := trip.ModuleByID(moduleID)
		if idx < 0 {
			return ErrModuleNotFound
		}
		trip.Modules = append(trip.Modules[:idx], trip.Modules[idx+1:]...)
		return nil
	}

	s.mutateCached(tripID, mutate)
	return s.mutateTrip(ctx, tripID, "delete_module", mutate)
}

// mutateCached applies the mutation to the projection only: the optimistic
// half of an optimistic write.
func (s *SyncService) mutateCached(tripID string, mutate func(*models.Trip) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.tripIndexLocked(tripID); idx >= 0 {
		clone := cloneTrip(s.trips[idx])
		if err := mutate(clone); err == nil {
			clone.UpdatedAt = time.Now()
			s.trips[idx] = clone
		}
	}
}

// mutateTrip runs a read-modify-write cycle against the store: fetch the
// latest document, apply the mutation, write back conditionally on the
// fetched version. One conflict triggers one re-read and retry; a second
// failure gives up and resyncs the projection from ground truth.
func (s *SyncService) mutateTrip(ctx context.Context, tripID, operation string, mutate func(*models.Trip) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		trip, err := s.store.GetTrip(ctx, tripID)
		if err != nil {
			s.logger.Error().Err(err).Str("trip_id", tripID).Str("op", operation).Msg("fetch trip failed")
			metrics.IncSyncOp(operation, "error")
			s.resyncTrip(ctx, tripID)
			return err
		}

		if err := mutate(trip); err != nil {
			metrics.IncSyncOp(operation, "error")
			return err
		}

		version, err := s.store.UpdateTripDoc(ctx, trip, trip.Version)
		if err == nil {
			trip.Version = version
			s.applySnapshot(trip)
			metrics.IncSyncOp(operation, "ok")
			return nil
		}
		lastErr = err

		if errors.Is(err, store.ErrVersionConflict) {
			metrics.IncVersionConflict()
			s.logger.Warn().Str("trip_id", tripID).Str("op", operation).Msg("version conflict, retrying against latest")
			continue
		}

		s.logger.Error().Err(err).Str("trip_id", tripID).Str("op", operation).Msg("trip write failed")
		break
	}

	metrics.IncSyncOp(operation, "error")
	s.resyncTrip(ctx, tripID)
	return lastErr
}

// resyncTrip reloads one trip from the store and overwrites the projection:
// the only corrective path after a failed write.
func (s *SyncService) resyncTrip(ctx context.Context, tripID string) {
	metrics.IncTripResync()

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		if errors.Is(err, store.ErrTripNotFound) {
			s.mu.Lock()
			if idx := s.tripIndexLocked(tripID); idx >= 0 {
				s.trips = append(s.trips[:idx], s.trips[idx+1:]...)
			}
			s.mu.Unlock()
			return
		}
		s.logger.Error().Err(err).Str("trip_id", tripID).Msg("resync failed")
		return
	}

	s.mu.Lock()
	if idx := s.tripIndexLocked(tripID); idx >= 0 {
		s.trips[idx] = trip
	} else {
		s.trips = append(s.trips, trip)
	}
	s.sortTripsLocked()
	s.mu.Unlock()
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func cloneTrip(t *models.Trip) *models.Trip {
	clone := *t
	clone.Participants = append([]string(nil), t.Participants...)
	clone.Modules = append([]models.Module(nil), t.Modules...)
	return &clone
}
