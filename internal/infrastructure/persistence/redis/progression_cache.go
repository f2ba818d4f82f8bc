package redis

import (
	"context"
	"errors"
	"time"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/pkg/circuitbreaker"
)

// store is the part of Cache the progression cache uses.
type store interface {
	Get(ctx context.Context, key string, dest any) error
	Counter(ctx context.Context, key string) (int64, error)
	SetIfCounter(ctx context.Context, key string, value any, ttl time.Duration, counterKey string, expected int64) (bool, error)
	Bump(ctx context.Context, counterKey string, counterTTL time.Duration, keys ...string) error
}

// ProgressionCache stores progression snapshots for read-through queries.
type ProgressionCache struct {
	cache   store
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

var _ progression.Cache = (*ProgressionCache)(nil)

// ProgressionCacheOption customizes a ProgressionCache.
type ProgressionCacheOption func(*ProgressionCache)

// WithBreaker routes every Redis call through cb. While the circuit is
// open, reads report a plain miss and writes are skipped.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) ProgressionCacheOption {
	return func(p *ProgressionCache) { p.breaker = cb }
}

// NewProgressionCache creates a ProgressionCache. A non-positive ttl uses
// TTLProgressionSnapshot.
func NewProgressionCache(cache *Cache, ttl time.Duration, opts ...ProgressionCacheOption) *ProgressionCache {
	var s store
	if cache != nil {
		s = cache
	}
	return newProgressionCache(s, ttl, opts...)
}

func newProgressionCache(s store, ttl time.Duration, opts ...ProgressionCacheOption) *ProgressionCache {
	if ttl <= 0 {
		ttl = TTLProgressionSnapshot
	}
	p := &ProgressionCache{cache: s, ttl: ttl}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the cached snapshot. A miss is (nil, false, nil).
func (p *ProgressionCache) Get(ctx context.Context, userID string) (*progression.Snapshot, bool, error) {
	key := ProgressionKey(userID)
	if key == "" {
		return nil, false, ErrCacheKeyEmpty
	}

	var (
		snap progression.Snapshot
		miss bool
	)
	err := p.guard(ctx, func(ctx context.Context) error {
		err := p.cache.Get(ctx, key, &snap)
		if errors.Is(err, ErrCacheMiss) {
			// A miss is a healthy answer from Redis.
			miss = true
			return nil
		}
		return err
	})
	switch {
	case err == nil && !miss:
		return &snap, true, nil
	case err == nil, circuitbreaker.IsRejected(err):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Generation returns the user's invalidation counter. A rejected call is
// reported, so the caller skips repopulating instead of writing unfenced.
func (p *ProgressionCache) Generation(ctx context.Context, userID string) (int64, error) {
	key := GenerationKey(userID)
	if key == "" {
		return 0, ErrCacheKeyEmpty
	}

	var gen int64
	err := p.guard(ctx, func(ctx context.Context) error {
		var err error
		gen, err = p.cache.Counter(ctx, key)
		return err
	})
	return gen, err
}

// Set caches a snapshot under its user's key, unless the user was
// invalidated after generation was read.
func (p *ProgressionCache) Set(ctx context.Context, snapshot progression.Snapshot, generation int64) error {
	key := ProgressionKey(snapshot.UserID)
	if key == "" {
		return ErrCacheKeyEmpty
	}
	err := p.guard(ctx, func(ctx context.Context) error {
		_, err := p.cache.SetIfCounter(ctx, key, snapshot, p.ttl, GenerationKey(snapshot.UserID), generation)
		return err
	})
	if circuitbreaker.IsRejected(err) {
		return nil
	}
	return err
}

// Invalidate drops the user's snapshot and advances their generation.
// Unlike reads and writes, a rejected invalidation is reported so the
// caller knows an entry may be stale until its TTL runs out.
func (p *ProgressionCache) Invalidate(ctx context.Context, userID string) error {
	key := ProgressionKey(userID)
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return p.guard(ctx, func(ctx context.Context) error {
		return p.cache.Bump(ctx, GenerationKey(userID), TTLProgressionGeneration, key)
	})
}

func (p *ProgressionCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if p.breaker == nil {
		return fn(ctx)
	}
	return p.breaker.Execute(ctx, fn)
}
