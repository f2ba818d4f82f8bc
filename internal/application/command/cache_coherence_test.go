package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sio4242/Godsaeng-project/internal/application/query"
	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/internal/infrastructure/messaging"
	"github.com/sio4242/Godsaeng-project/pkg/circuitbreaker"
)

// fencedCache mirrors the generation rules of the Redis progression cache.
type fencedCache struct {
	mu            sync.Mutex
	items         map[string]progression.Snapshot
	gens          map[string]int64
	invalidations int
	invalidateErr error
}

func newFencedCache() *fencedCache {
	return &fencedCache{items: map[string]progression.Snapshot{}, gens: map[string]int64{}}
}

func (c *fencedCache) Get(_ context.Context, userID string) (*progression.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[userID]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *fencedCache) Generation(_ context.Context, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *fencedCache) Set(_ context.Context, s progression.Snapshot, generation int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[s.UserID] == generation {
		c.items[s.UserID] = s
	}
	return nil
}

func (c *fencedCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.gens[userID]++
	delete(c.items, userID)
	return nil
}

func (c *fencedCache) cached(userID string) (progression.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items[userID]
	return s, ok
}

// pausingRepo blocks the first GetLedger after the row is read.
type pausingRepo struct {
	progression.Repository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r *pausingRepo) GetLedger(ctx context.Context, userID string) (*progression.Ledger, error) {
	l, err := r.Repository.GetLedger(ctx, userID)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return l, err
}

func TestCloseSession_ReadAfterCloseSeesCommittedLedger(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "u-1")
	cache := newFencedCache()

	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	t.Cleanup(func() { _ = bus.Close() })

	closer := NewCloseSessionHandler(h.store, bus, nil, CloseSessionHandlerConfig{Clock: h.clock.Now, Cache: cache})
	reader := query.NewGetProgressionHandler(h.store, cache, nil, nil)
	ctx := context.Background()

	start := t0
	for i := 1; i <= 30; i++ {
		_, err := reader.Handle(ctx, query.GetProgressionQuery{UserID: "u-1"})
		require.NoError(t, err)

		id := h.openAt(t, "u-1", start)
		start = start.Add(time.Minute)
		h.clock.Set(start)
		_, err = closer.Handle(ctx, CloseSessionCommand{UserID: "u-1", SessionID: id.String()})
		require.NoError(t, err)

		snap, err := reader.Handle(ctx, query.GetProgressionQuery{UserID: "u-1"})
		require.NoError(t, err)
		require.Equal(t, i, snap.Exp, "read right after close %d", i)
	}
}

func TestCloseSession_ReaderRacingCloseCannotCacheOldLedger(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "u-1")
	cache := newFencedCache()
	ctx := context.Background()

	repo := &pausingRepo{Repository: h.store, read: make(chan struct{}), release: make(chan struct{})}
	slowReader := query.NewGetProgressionHandler(repo, cache, nil, nil)
	closer := NewCloseSessionHandler(h.store, nil, nil, CloseSessionHandlerConfig{Clock: h.clock.Now, Cache: cache})

	id := h.openAt(t, "u-1", t0)

	var (
		wg      sync.WaitGroup
		oldSnap *progression.Snapshot
		readErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		oldSnap, readErr = slowReader.Handle(ctx, query.GetProgressionQuery{UserID: "u-1"})
	}()

	<-repo.read
	h.clock.Set(t0.Add(90 * time.Minute))
	res, err := closer.Handle(ctx, CloseSessionCommand{UserID: "u-1", SessionID: id.String()})
	require.NoError(t, err)
	require.Equal(t, 90, res.Progression.Exp)

	close(repo.release)
	wg.Wait()
	require.NoError(t, readErr)
	assert.Equal(t, 0, oldSnap.Exp, "the paused reader saw the ledger before the close")

	_, cached := cache.cached("u-1")
	assert.False(t, cached, "the pre-close ledger must not be written back")

	snap, err := query.NewGetProgressionHandler(h.store, cache, nil, nil).Handle(ctx, query.GetProgressionQuery{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, 90, snap.Exp)
}

func TestCloseSession_InvalidationOnlyWhenLedgerChanged(t *testing.T) {
	h := newHarness(t)
	h.provision(t, "u-1")
	cache := newFencedCache()
	closer := NewCloseSessionHandler(h.store, nil, nil, CloseSessionHandlerConfig{Clock: h.clock.Now, Cache: cache})
	ctx := context.Background()

	id := h.openAt(t, "u-1", t0)
	h.clock.Set(t0.Add(30 * time.Second))
	_, err := closer.Handle(ctx, CloseSessionCommand{UserID: "u-1", SessionID: id.String()})
	require.NoError(t, err)
	assert.Zero(t, cache.invalidations, "a zero award leaves the cache alone")

	id = h.openAt(t, "u-1", t0.Add(time.Minute))
	h.clock.Set(t0.Add(3 * time.Minute))
	_, err = closer.Handle(ctx, CloseSessionCommand{UserID: "u-1", SessionID: id.String()})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)
}

func TestCloseSession_InvalidationFailureKeepsResult(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{name: "transient failure is retried", err: errors.New("redis down"), attempts: 3},
		{name: "open circuit is not retried", err: circuitbreaker.ErrCircuitOpen, attempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.provision(t, "u-1")
			cache := newFencedCache()
			cache.invalidateErr = tt.err
			closer := NewCloseSessionHandler(h.store, nil, nil, CloseSessionHandlerConfig{Clock: h.clock.Now, Cache: cache})

			id := h.openAt(t, "u-1", t0)
			h.clock.Set(t0.Add(2 * time.Minute))
			res, err := closer.Handle(context.Background(), CloseSessionCommand{UserID: "u-1", SessionID: id.String()})
			require.NoError(t, err)
			assert.Equal(t, OutcomeClosed, res.Outcome)
			assert.Equal(t, tt.attempts, cache.invalidations)
		})
	}
}
