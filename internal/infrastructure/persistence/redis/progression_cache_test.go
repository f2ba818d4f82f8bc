package redis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/pkg/circuitbreaker"
)

// unreachable points at a port nothing listens on.
func unreachable(t *testing.T) *ProgressionCache {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewProgressionCache(NewCacheFromClient(client), 0)
}

func TestProgressionKey(t *testing.T) {
	assert.Equal(t, "progression:u-1", ProgressionKey("u-1"))
	assert.Empty(t, ProgressionKey(""))
	assert.Equal(t, "progression_gen:u-1", GenerationKey("u-1"))
	assert.Empty(t, GenerationKey(""))
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConfig)
}

func TestNewProgressionCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, TTLProgressionSnapshot, NewProgressionCache(nil, 0).ttl)
	assert.Equal(t, time.Minute, NewProgressionCache(nil, time.Minute).ttl)
}

func TestProgressionCache_RejectsEmptyUser(t *testing.T) {
	c := unreachable(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
	assert.False(t, found)

	assert.ErrorIs(t, c.Set(ctx, progression.Snapshot{}, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Invalidate(ctx, ""), ErrCacheKeyEmpty)
	_, err = c.Generation(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)
}

func TestProgressionCache_UnreachableIsAnErrorNotAMiss(t *testing.T) {
	c := unreachable(t)
	ctx := context.Background()

	snap, found, err := c.Get(ctx, "u-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
	assert.False(t, found)
	assert.Nil(t, snap)

	assert.Error(t, c.Invalidate(ctx, "u-1"))
	_, err = c.Generation(ctx, "u-1")
	assert.Error(t, err)
}

func TestNewCache_PingFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 1
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.MaxRetries = -1

	_, err := NewCache(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

// memStore is an in-process stand-in for Cache.
type memStore struct {
	items    map[string][]byte
	ttls     map[string]time.Duration
	counters map[string]int64
	err      error
}

func newMemStore() *memStore {
	return &memStore{
		items:    map[string][]byte{},
		ttls:     map[string]time.Duration{},
		counters: map[string]int64{},
	}
}

func (m *memStore) Get(_ context.Context, key string, dest any) error {
	if m.err != nil {
		return m.err
	}
	data, ok := m.items[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *memStore) Counter(_ context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.counters[key], nil
}

func (m *memStore) SetIfCounter(_ context.Context, key string, value any, ttl time.Duration, counterKey string, expected int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.counters[counterKey] != expected {
		return false, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	m.items[key] = data
	m.ttls[key] = ttl
	return true, nil
}

func (m *memStore) Bump(_ context.Context, counterKey string, counterTTL time.Duration, keys ...string) error {
	if m.err != nil {
		return m.err
	}
	m.counters[counterKey]++
	m.ttls[counterKey] = counterTTL
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func TestProgressionCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	c := newProgressionCache(mem, time.Minute)

	_, found, err := c.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found)

	gen, err := c.Generation(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, c.Set(ctx, progression.Snapshot{UserID: "u-1", Level: 3, Exp: 42, ExpRequired: 100, UpdatedAt: at}, gen))
	assert.Equal(t, time.Minute, mem.ttls["progression:u-1"])

	snap, found, err := c.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, snap.Level)
	assert.Equal(t, 42, snap.Exp)
	assert.True(t, snap.UpdatedAt.Equal(at))

	require.NoError(t, c.Invalidate(ctx, "u-1"))
	_, found, err = c.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, TTLProgressionGeneration, mem.ttls["progression_gen:u-1"])

	gen, err = c.Generation(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestProgressionCache_SetDroppedAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	c := newProgressionCache(newMemStore(), time.Minute)

	// A reader fetches the generation, then the ledger.
	gen, err := c.Generation(ctx, "u-1")
	require.NoError(t, err)
	stale := progression.Snapshot{UserID: "u-1", Level: 1, Exp: 0, ExpRequired: 100}

	// A close commits and invalidates before the reader writes back.
	require.NoError(t, c.Invalidate(ctx, "u-1"))

	require.NoError(t, c.Set(ctx, stale, gen))
	_, found, err := c.Get(ctx, "u-1")
	require.NoError(t, err)
	assert.False(t, found, "a snapshot read before the invalidation must not be cached")

	gen, err = c.Generation(ctx, "u-1")
	require.NoError(t, err)
	fresh := progression.Snapshot{UserID: "u-1", Level: 1, Exp: 90, ExpRequired: 100}
	require.NoError(t, c.Set(ctx, fresh, gen))

	snap, found, err := c.Get(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 90, snap.Exp)
}

func TestProgressionCache_BreakerSkipsDeadRedis(t *testing.T) {
	ctx := context.Background()
	mem := newMemStore()
	cb := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(2), circuitbreaker.WithTimeout(time.Hour))
	c := newProgressionCache(mem, 0, WithBreaker(cb))

	// Misses are not failures.
	for i := 0; i < 5; i++ {
		_, _, err := c.Get(ctx, "u-1")
		require.NoError(t, err)
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	mem.err = errors.New("connection refused")
	_, _, err := c.Get(ctx, "u-1")
	assert.Error(t, err)
	_, _, err = c.Get(ctx, "u-1")
	assert.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	_, found, err := c.Get(ctx, "u-1")
	assert.NoError(t, err, "an open circuit reads as a miss")
	assert.False(t, found)
	assert.NoError(t, c.Set(ctx, progression.Snapshot{UserID: "u-1"}, 0))
	assert.ErrorIs(t, c.Invalidate(ctx, "u-1"), circuitbreaker.ErrCircuitOpen)

	_, err = c.Generation(ctx, "u-1")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

// liveCache connects to GODSAENG_TEST_REDIS_URL or skips the test.
func liveCache(t *testing.T) *Cache {
	t.Helper()
	url := os.Getenv("GODSAENG_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GODSAENG_TEST_REDIS_URL not set")
	}
	cfg := DefaultConfig()
	cfg.URL = url
	c, err := NewCache(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestProgressionCache_LiveFencing(t *testing.T) {
	ctx := context.Background()
	c := newProgressionCache(liveCache(t), time.Minute)
	user := "fence-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	gen, err := c.Generation(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, gen)

	require.NoError(t, c.Invalidate(ctx, user))
	require.NoError(t, c.Set(ctx, progression.Snapshot{UserID: user, Exp: 0}, gen))
	_, found, err := c.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, found)

	gen, err = c.Generation(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, c.Set(ctx, progression.Snapshot{UserID: user, Exp: 90}, gen))

	snap, found, err := c.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 90, snap.Exp)

	require.NoError(t, c.Invalidate(ctx, user))
	_, found, err = c.Get(ctx, user)
	require.NoError(t, err)
	assert.False(t, found)
}
