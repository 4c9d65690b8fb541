package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripline/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when refreshing a lock that expired or was
// released remotely.
var ErrLockNotHeld = errors.New("section lock not held")

// RedisLockRepository keeps section locks as per-lock keys with a TTL, so a
// crashed client's lock expires instead of leaking forever.
type RedisLockRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisLockRepository(client *redis.Client) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

func lockKey(tripID, moduleID string) string {
	return fmt.Sprintf("section_lock:%s:%s", tripID, moduleID)
}

func (r *RedisLockRepository) Lock(ctx context.Context, tripID, moduleID, userID string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, lockKey(tripID, moduleID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set section lock: %w", err)
	}
	return nil
}

func (r *RedisLockRepository) Unlock(ctx context.Context, tripID, moduleID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, lockKey(tripID, moduleID)).Err(); err != nil {
		return fmt.Errorf("failed to delete section lock: %w", err)
	}
	return nil
}

func (r *RedisLockRepository) Refresh(ctx context.Context, tripID, moduleID string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ok, err := r.client.Expire(ctx, lockKey(tripID, moduleID), ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh section lock: %w", err)
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}

// Locks returns the full moduleID -> userID map for a trip.
func (r *RedisLockRepository) Locks(ctx context.Context, tripID string) (map[string]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	prefix := fmt.Sprintf("section_lock:%s:", tripID)
	locks := make(map[string]string)

	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		userID, err := r.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get section lock: %w", err)
		}
		locks[strings.TrimPrefix(key, prefix)] = userID
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan section locks: %w", err)
	}

	return locks, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
