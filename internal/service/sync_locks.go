package service

import (
	"context"
	"encoding/json"
	"strings"

	"tripline/internal/events"
	"tripline/internal/metrics"
)

// LockSection claims the edit lock for one module. The local lock map updates
// only after the repository confirms the claim, so the projection never shows
// a lock the server does not hold.
func (s *SyncService) LockSection(ctx context.Context, tripID, moduleID string) error {
	if err := s.locks.Lock(ctx, tripID, moduleID, s.userID, s.lockTTL); err != nil {
		s.logger.Error().Err(err).Str("trip_id", tripID).Str("module_id", moduleID).Msg("lock section failed")
		metrics.IncSyncOp("lock_section", "error")
		return err
	}

	s.mu.Lock()
	s.lockMap[moduleID] = s.userID
	s.held[heldKey(tripID, moduleID)] = heldLock{tripID: tripID, moduleID: moduleID}
	s.mu.Unlock()

	metrics.IncSyncOp("lock_section", "ok")
	return s.bus.PublishJSON(events.EventLocksChanged, events.LockEventPayload{
		TripID: tripID, ModuleID: moduleID, UserID: s.userID,
	})
}

// UnlockSection releases the lock. The repository call is unconditional: a
// holder check lives with the callers that need one.
func (s *SyncService) UnlockSection(ctx context.Context, tripID, moduleID string) error {
	if err := s.locks.Unlock(ctx, tripID, moduleID); err != nil {
		s.logger.Error().Err(err).Str("trip_id", tripID).Str("module_id", moduleID).Msg("unlock section failed")
		metrics.IncSyncOp("unlock_section", "error")
		return err
	}

	s.mu.Lock()
	delete(s.lockMap, moduleID)
	delete(s.held, heldKey(tripID, moduleID))
	s.mu.Unlock()

	metrics.IncSyncOp("unlock_section", "ok")
	return s.bus.PublishJSON(events.EventLocksChanged, events.LockEventPayload{
		TripID: tripID, ModuleID: moduleID,
	})
}

// ListenToSectionLocks starts watching the lock map of one trip. Every change
// notification triggers a refetch that replaces the local map wholesale. The
// returned cancel function detaches the watch; it is safe to call twice.
func (s *SyncService) ListenToSectionLocks(ctx context.Context, tripID string) func() {
	s.refreshLockMap(ctx, tripID)

	cancel := s.bus.Subscribe(events.EventLocksChanged, func(event *events.Event) error {
		var payload events.LockEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if payload.TripID != tripID {
			return nil
		}
		s.refreshLockMap(ctx, tripID)
		return nil
	})

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()
	return cancel
}

func (s *SyncService) refreshLockMap(ctx context.Context, tripID string) {
	locks, err := s.locks.Locks(ctx, tripID)
	if err != nil {
		s.logger.Error().Err(err).Str("trip_id", tripID).Msg("fetch lock map failed, keeping cached map")
		return
	}

	s.mu.Lock()
	s.lockMap = locks
	s.mu.Unlock()
}

// SectionLocks refetches and returns the lock map for one trip.
func (s *SyncService) SectionLocks(ctx context.Context, tripID string) map[string]string {
	s.refreshLockMap(ctx, tripID)

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.lockMap))
	for k, v := range s.lockMap {
		out[k] = v
	}
	return out
}

// IsSectionLocked reports whether someone other than byUserID holds the lock.
// A user's own lock never blocks them, and an unknown module is unlocked.
func (s *SyncService) IsSectionLocked(moduleID, byUserID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	holder, ok := s.lockMap[moduleID]
	return ok && holder != byUserID
}

// HeldLocks lists the locks this service currently holds, keyed
// "tripID/moduleID". The lock keeper walks this set to refresh TTLs.
func (s *SyncService) HeldLocks() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.held))
	for key := range s.held {
		out[key] = s.userID
	}
	return out
}

// DropHeldLock forgets a lock without calling the repository. Used when a
// refresh reports the lock already expired server-side.
func (s *SyncService) DropHeldLock(tripID, moduleID string) {
	s.mu.Lock()
	delete(s.held, heldKey(tripID, moduleID))
	if s.lockMap[moduleID] == s.userID {
		delete(s.lockMap, moduleID)
	}
	s.mu.Unlock()
}

// Close detaches all subscriptions and releases every held lock. Meant for
// sign-out and session teardown.
func (s *SyncService) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	held := make([]heldLock, 0, len(s.held))
	for _, h := range s.held {
		held = append(held, h)
	}
	s.held = make(map[string]heldLock)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	for _, h := range held {
		if err := s.locks.Unlock(ctx, h.tripID, h.moduleID); err != nil {
			s.logger.Warn().Err(err).Str("trip_id", h.tripID).Str("module_id", h.moduleID).Msg("release lock on close failed")
		}
	}
}

func heldKey(tripID, moduleID string) string {
	return tripID + "/" + moduleID
}

// SplitHeldKey is the inverse of the HeldLocks key format.
func SplitHeldKey(key string) (tripID, moduleID string, ok bool) {
	idx := strings.LastIndex(key, "/")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}
