package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/session-service/internal/core/domain"
)

// ErrStoreUnavailable wraps every Redis fault, including timeouts.
// Callers must treat it as "not authenticated" (fail closed).
var ErrStoreUnavailable = errors.New("key-value store unavailable")

// RedisStore implements domain.KeyValueStore on top of Redis.
// Each operation is bounded by opTimeout.
type RedisStore struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewRedisStore creates a RedisStore. A non-positive opTimeout leaves
// deadlines to the caller's context.
func NewRedisStore(client redis.UniversalClient, opTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, opTimeout: opTimeout}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// SetWithTTL stores value under key with a millisecond-precision TTL.
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("set %q: ttl must be positive", key)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, roundTTL(ttl)).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SetManyWithTTL writes all entries inside one MULTI/EXEC transaction.
func (s *RedisStore) SetManyWithTTL(ctx context.Context, entries ...domain.StoreEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.TTL <= 0 {
			return fmt.Errorf("set %q: ttl must be positive", e.Key)
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, roundTTL(e.TTL))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: multi set: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns the value under key.
// Returns ("", false, nil) when the key is absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

// Delete removes keys with a single DEL. Absent keys are ignored.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: exists: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks connectivity; used by the readiness probe.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// roundTTL keeps sub-millisecond TTLs from collapsing to zero, which Redis
// would treat as "no expiry".
func roundTTL(ttl time.Duration) time.Duration {
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl.Truncate(time.Millisecond)
}
