package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryLockRepository is the in-process fallback lock store. Expiry is
// checked lazily on read.
type MemoryLockRepository struct {
	locks sync.Map
}

type lockEntry struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{}
}

func memKey(tripID, moduleID string) string {
	return tripID + "/" + moduleID
}

func (r *MemoryLockRepository) Lock(ctx context.Context, tripID, moduleID, userID string, ttl time.Duration) error {
	r.locks.Store(memKey(tripID, moduleID), &lockEntry{
		userID:    userID,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemoryLockRepository) Unlock(ctx context.Context, tripID, moduleID string) error {
	r.locks.Delete(memKey(tripID, moduleID))
	return nil
}

func (r *MemoryLockRepository) Refresh(ctx context.Context, tripID, moduleID string, ttl time.Duration) error {
	key := memKey(tripID, moduleID)
	val, ok := r.locks.Load(key)
	if !ok {
		return ErrLockNotHeld
	}
	entry := val.(*lockEntry)
	if time.Now().After(entry.expiresAt) {
		r.locks.Delete(key)
		return ErrLockNotHeld
	}
	r.locks.Store(key, &lockEntry{userID: entry.userID, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (r *MemoryLockRepository) Locks(ctx context.Context, tripID string) (map[string]string, error) {
	prefix := tripID + "/"
	now := time.Now()
	locks := make(map[string]string)

	r.locks.Range(func(key, val any) bool {
		k := key.(string)
		if !strings.HasPrefix(k, prefix) {
			return true
		}
		entry := val.(*lockEntry)
		if now.After(entry.expiresAt) {
			r.locks.Delete(key)
			return true
		}
		locks[strings.TrimPrefix(k, prefix)] = entry.userID
		return true
	})

	return locks, nil
}
