package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockRepository(t *testing.T) {
	repo := NewMemoryLockRepository()
	ctx := context.Background()

	require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", time.Minute))
	require.NoError(t, repo.Lock(ctx, "t1", "m2", "u2", time.Minute))

	locks, err := repo.Locks(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m1": "u1", "m2": "u2"}, locks)

	require.NoError(t, repo.Unlock(ctx, "t1", "m1"))
	locks, _ = repo.Locks(ctx, "t1")
	assert.Equal(t, map[string]string{"m2": "u2"}, locks)
}

func TestMemoryLockExpiry(t *testing.T) {
	repo := NewMemoryLockRepository()
	ctx := context.Background()

	require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", -time.Second))

	locks, err := repo.Locks(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, locks)

	err = repo.Refresh(ctx, "t1", "m1", time.Minute)
	assert.ErrorIs(t, err, ErrLockNotHeld)
}

func TestMemoryLockRefresh(t *testing.T) {
	repo := NewMemoryLockRepository()
	ctx := context.Background()

	require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", time.Minute))
	require.NoError(t, repo.Refresh(ctx, "t1", "m1", time.Hour))

	locks, _ := repo.Locks(ctx, "t1")
	assert.Equal(t, "u1", locks["m1"])

	assert.ErrorIs(t, repo.Refresh(ctx, "t1", "missing", time.Minute), ErrLockNotHeld)
}

type failingLockRepo struct{}

func (failingLockRepo) Lock(context.Context, string, string, string, time.Duration) error {
	return assert.AnError
}
func (failingLockRepo) Unlock(context.Context, string, string) error { return assert.AnError }
func (failingLockRepo) Refresh(context.Context, string, string, time.Duration) error {
	return assert.AnError
}
func (failingLockRepo) Locks(context.Context, string) (map[string]string, error) {
	return nil, assert.AnError
}

func TestFailoverFallsBackToMemory(t *testing.T) {
	logger := zerolog.New(io.Discard)
	fallback := NewMemoryLockRepository()
	repo := NewFailoverLockRepository(failingLockRepo{}, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", time.Minute))

	locks, err := repo.Locks(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m1": "u1"}, locks)

	require.NoError(t, repo.Unlock(ctx, "t1", "m1"))
	locks, _ = repo.Locks(ctx, "t1")
	assert.Empty(t, locks)
}

func TestFailoverPrefersHealthyPrimary(t *testing.T) {
	logger := zerolog.New(io.Discard)
	primary := NewMemoryLockRepository()
	fallback := NewMemoryLockRepository()
	repo := NewFailoverLockRepository(primary, fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", time.Minute))

	locks, _ := primary.Locks(ctx, "t1")
	assert.Equal(t, "u1", locks["m1"])

	locks, _ = fallback.Locks(ctx, "t1")
	assert.Empty(t, locks)
}
