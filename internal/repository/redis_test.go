package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	repo := NewRedisLockRepository(client)
	ctx := context.Background()

	t.Run("LockAndList", func(t *testing.T) {
		require.NoError(t, repo.Lock(ctx, "t1", "m1", "u1", time.Minute))
		require.NoError(t, repo.Lock(ctx, "t1", "m2", "u2", time.Minute))
		require.NoError(t, repo.Lock(ctx, "t2", "m1", "u3", time.Minute))

		locks, err := repo.Locks(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"m1": "u1", "m2": "u2"}, locks)
	})

	t.Run("Unlock", func(t *testing.T) {
		require.NoError(t, repo.Unlock(ctx, "t1", "m2"))

		locks, err := repo.Locks(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"m1": "u1"}, locks)
	})

	t.Run("LockExpires", func(t *testing.T) {
		require.NoError(t, repo.Lock(ctx, "t3", "m1", "u1", time.Second))
		s.FastForward(2 * time.Second)

		locks, err := repo.Locks(ctx, "t3")
		require.NoError(t, err)
		assert.Empty(t, locks)
	})

	t.Run("RefreshExtendsTTL", func(t *testing.T) {
		require.NoError(t, repo.Lock(ctx, "t4", "m1", "u1", 2*time.Second))
		s.FastForward(time.Second)
		require.NoError(t, repo.Refresh(ctx, "t4", "m1", 2*time.Second))
		s.FastForward(time.Second)

		locks, err := repo.Locks(ctx, "t4")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"m1": "u1"}, locks)
	})

	t.Run("RefreshExpiredLock", func(t *testing.T) {
		require.NoError(t, repo.Lock(ctx, "t5", "m1", "u1", time.Second))
		s.FastForward(2 * time.Second)

		err := repo.Refresh(ctx, "t5", "m1", time.Second)
		assert.ErrorIs(t, err, ErrLockNotHeld)
	})

	t.Run("RelockOverwritesHolder", func(t *testing.T) {
		require.NoError(t, repo.Lock(ctx, "t6", "m1", "u1", time.Minute))
		require.NoError(t, repo.Lock(ctx, "t6", "m1", "u2", time.Minute))

		locks, err := repo.Locks(ctx, "t6")
		require.NoError(t, err)
		assert.Equal(t, "u2", locks["m1"])
	})
}

func TestRedisLockRepositoryNilClient(t *testing.T) {
	repo := NewRedisLockRepository(nil)
	ctx := context.Background()

	assert.Error(t, repo.Lock(ctx, "t", "m", "u", time.Minute))
	assert.Error(t, repo.Unlock(ctx, "t", "m"))
	assert.Error(t, repo.Refresh(ctx, "t", "m", time.Minute))
	_, err := repo.Locks(ctx, "t")
	assert.Error(t, err)
}
