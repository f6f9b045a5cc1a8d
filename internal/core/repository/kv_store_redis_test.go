package repository

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/session-service/internal/core/domain"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Second), mr
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	store, _ := newRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v1", time.Minute))

	v, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.SetWithTTL(ctx, "k", "v2", time.Minute))
	v, _, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)

	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"), "deleting an absent key is not an error")

	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", 1500*time.Millisecond))
	assert.Equal(t, 1500*time.Millisecond, mr.TTL("k"))

	mr.FastForward(1499 * time.Millisecond)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Millisecond)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRejectsNonPositiveTTL(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	assert.Error(t, store.SetWithTTL(ctx, "k", "v", 0))
	assert.Error(t, store.SetManyWithTTL(ctx, domain.StoreEntry{Key: "a", Value: "1", TTL: -time.Second}))
	assert.False(t, mr.Exists("k"))
	assert.False(t, mr.Exists("a"))
}

func TestRedisStoreSetMany(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	err := store.SetManyWithTTL(ctx,
		domain.StoreEntry{Key: "a", Value: "1", TTL: time.Minute},
		domain.StoreEntry{Key: "b", Value: "2", TTL: time.Hour},
	)
	require.NoError(t, err)

	a, err := mr.Get("a")
	require.NoError(t, err)
	b, err := mr.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "1", a)
	assert.Equal(t, "2", b)
	assert.Equal(t, time.Minute, mr.TTL("a"))
	assert.Equal(t, time.Hour, mr.TTL("b"))

	require.NoError(t, store.SetManyWithTTL(ctx))
}

func TestRedisStoreDeleteMany(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, mr.Set("b", "2"))

	require.NoError(t, store.Delete(ctx, "a", "b", "missing"))
	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestRedisStoreFaultsWrapUnavailable(t *testing.T) {
	store, mr := newRedisStoreTest(t)
	ctx := context.Background()

	mr.SetError("ERR store unavailable")

	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.SetWithTTL(ctx, "k", "v", time.Minute), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete(ctx, "k"), ErrStoreUnavailable)
	_, err = store.Exists(ctx, "k")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, store.Ping(ctx), ErrStoreUnavailable)
}

func TestRedisStoreTimeoutFailsClosed(t *testing.T) {
	// A listener that accepts connections and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:                  ln.Addr().String(),
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
		ReadTimeout:           50 * time.Millisecond,
		WriteTimeout:          50 * time.Millisecond,
		DisableIdentity:       true,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisStore(rdb, 100*time.Millisecond)

	start := time.Now()
	_, ok, err := store.Get(context.Background(), "access_token:u1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRoundTTL(t *testing.T) {
	assert.Equal(t, time.Millisecond, roundTTL(time.Microsecond))
	assert.Equal(t, 1500*time.Millisecond, roundTTL(1500*time.Millisecond+300*time.Microsecond))
}
