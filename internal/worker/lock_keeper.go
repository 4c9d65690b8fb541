package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"tripline/internal/domain"
	"tripline/internal/models"
	"tripline/internal/repository"
	"tripline/internal/service"
)

// HeldLockSource exposes the locks a sync session currently holds. The keeper
// never takes locks itself; it only keeps existing ones alive.
type HeldLockSource interface {
	HeldLocks() map[string]string
	DropHeldLock(tripID, moduleID string)
}

// LockKeeper is the heartbeat behind section locks. Every tick it re-arms the
// TTL of each held lock; a client that stops ticking (crash, kill -9, network
// partition) lets its locks expire server-side, so no section stays locked
// forever. The tick interval is a fraction of the TTL, leaving room for a few
// missed beats before expiry.
type LockKeeper struct {
	locks    domain.LockRepository
	ttl      time.Duration
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	sources map[string]HeldLockSource
}

func NewLockKeeper(locks domain.LockRepository, ttl time.Duration, logger *log.Logger) *LockKeeper {
	if ttl <= 0 {
		ttl = models.DefaultLockTTLSeconds * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LockKeeper{
		locks:    locks,
		ttl:      ttl,
		interval: ttl / models.LockHeartbeatDivisor,
		logger:   logger,
		sources:  make(map[string]HeldLockSource),
	}
}

// Track registers a session whose held locks should be kept alive. Untrack
// with the same id on session teardown.
func (k *LockKeeper) Track(sessionID string, source HeldLockSource) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sources[sessionID] = source
}

func (k *LockKeeper) Untrack(sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.sources, sessionID)
}

// Run ticks until ctx is done.
func (k *LockKeeper) Run(ctx context.Context) {
	k.logger.Printf("lock_keeper: started, interval %s", k.interval)
	defer k.logger.Printf("lock_keeper: stopped")

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.beat(ctx)
		}
	}
}

// beat refreshes every held lock once. A refresh that reports the lock gone
// means the TTL already fired; the session forgets the lock rather than
// silently editing an unlocked section.
func (k *LockKeeper) beat(ctx context.Context) {
	k.mu.Lock()
	sources := make(map[string]HeldLockSource, len(k.sources))
	for id, s := range k.sources {
		sources[id] = s
	}
	k.mu.Unlock()

	for sessionID, source := range sources {
		for key := range source.HeldLocks() {
			tripID, moduleID, ok := service.SplitHeldKey(key)
			if !ok {
				k.logger.Printf("lock_keeper: bad held lock key %q (session %s)", key, sessionID)
				continue
			}

			err := k.locks.Refresh(ctx, tripID, moduleID, k.ttl)
			if err == nil {
				continue
			}
			if errors.Is(err, repository.ErrLockNotHeld) {
				k.logger.Printf("lock_keeper: lock %s expired under session %s", key, sessionID)
				source.DropHeldLock(tripID, moduleID)
				continue
			}
			k.logger.Printf("lock_keeper: refresh %s failed: %v", key, err)
		}
	}
}
