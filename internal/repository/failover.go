package repository

import (
	"context"
	"sync/atomic"
	"time"

	"tripline/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLockRepository serves locks from the primary (redis) repository and
// falls back to the in-memory one when the primary errors. It retries the
// primary after a minute.
type FailoverLockRepository struct {
	primary   domain.LockRepository
	fallback  domain.LockRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLockRepository(primary, fallback domain.LockRepository, logger *zerolog.Logger) *FailoverLockRepository {
	return &FailoverLockRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLockRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary lock repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverLockRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverLockRepository) Lock(ctx context.Context, tripID, moduleID, userID string, ttl time.Duration) error {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.Lock(ctx, tripID, moduleID, userID, ttl)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Lock(ctx, tripID, moduleID, userID, ttl)
}

func (r *FailoverLockRepository) Unlock(ctx context.Context, tripID, moduleID string) error {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.Unlock(ctx, tripID, moduleID)
		if err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Unlock(ctx, tripID, moduleID)
}

func (r *FailoverLockRepository) Refresh(ctx context.Context, tripID, moduleID string, ttl time.Duration) error {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		err := r.primary.Refresh(ctx, tripID, moduleID, ttl)
		if err == nil || err == ErrLockNotHeld {
			r.isDown.Store(false)
			return err
		}
		r.markDown(err)
	}
	return r.fallback.Refresh(ctx, tripID, moduleID, ttl)
}

func (r *FailoverLockRepository) Locks(ctx context.Context, tripID string) (map[string]string, error) {
	if !r.isDown.Load() || r.shouldRetryPrimary() {
		locks, err := r.primary.Locks(ctx, tripID)
		if err == nil {
			r.isDown.Store(false)
			return locks, nil
		}
		r.markDown(err)
	}
	return r.fallback.Locks(ctx, tripID)
}
