package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t, backwards included.
func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, opts Options) Store

func memoryFactory(t *testing.T, opts Options) Store {
	s, err := NewMemoryStore(opts)
	require.NoError(t, err)
	return s
}

func redisFactory(t *testing.T, opts Options) Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s, err := NewRedisStore(client, "test:fingerprints", opts)
	require.NoError(t, err)
	return s
}

func TestStores(t *testing.T) {
	for name, factory := range map[string]storeFactory{
		"memory": memoryFactory,
		"redis":  redisFactory,
	} {
		t.Run(name, func(t *testing.T) {
			t.Run("InsertThenContains", func(t *testing.T) { testInsertThenContains(t, factory) })
			t.Run("CapacityEvictsOldest", func(t *testing.T) { testCapacityEvictsOldest(t, factory) })
			t.Run("EntriesExpireAfterTTL", func(t *testing.T) { testEntriesExpire(t, factory) })
			t.Run("InsertIfAbsent", func(t *testing.T) { testInsertIfAbsent(t, factory) })
			t.Run("RefreshMovesToBack", func(t *testing.T) { testRefreshMovesToBack(t, factory) })
			t.Run("Remove", func(t *testing.T) { testRemove(t, factory) })
			t.Run("ConcurrentInsertIfAbsent", func(t *testing.T) { testConcurrentInsertIfAbsent(t, factory) })
		})
	}
}

func testInsertThenContains(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	clock := newFakeClock()
	s := factory(t, Options{TTL: time.Hour, Capacity: 10, Now: clock.Now})

	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Insert(ctx, "a"))

	ok, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func testCapacityEvictsOldest(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	clock := newFakeClock()
	const capacity = 5
	s := factory(t, Options{TTL: time.Hour, Capacity: capacity, Now: clock.Now})

	for i := 0; i <= capacity; i++ {
		require.NoError(t, s.Insert(ctx, fmt.Sprintf("fp-%d", i)))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, capacity, n)

	ok, err := s.Contains(ctx, "fp-0")
	require.NoError(t, err)
	require.False(t, ok, "first inserted entry should be evicted")

	for i := 1; i <= capacity; i++ {
		ok, err := s.Contains(ctx, fmt.Sprintf("fp-%d", i))
		require.NoError(t, err)
		require.True(t, ok, "fp-%d", i)
	}
}

func testEntriesExpire(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	clock := newFakeClock()
	ttl := 10 * time.Minute
	s := factory(t, Options{TTL: ttl, Capacity: 10, Now: clock.Now})

	require.NoError(t, s.Insert(ctx, "a"))

	clock.Advance(ttl - time.Second)
	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(time.Second)
	ok, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok, "entry must be absent at exactly t+TTL")

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	inserted, err := s.InsertIfAbsent(ctx, "a")
	require.NoError(t, err)
	require.True(t, inserted, "expired entry must not block a new insert")
}

func testInsertIfAbsent(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	clock := newFakeClock()
	s := factory(t, Options{TTL: time.Hour, Capacity: 10, Now: clock.Now})

	inserted, err := s.InsertIfAbsent(ctx, "a")
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = s.InsertIfAbsent(ctx, "a")
	require.NoError(t, err)
	require.False(t, inserted)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func testRefreshMovesToBack(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	clock := newFakeClock()
	s := factory(t, Options{TTL: time.Hour, Capacity: 2, Now: clock.Now})

	require.NoError(t, s.Insert(ctx, "a"))
	clock.Advance(time.Minute)
	require.NoError(t, s.Insert(ctx, "b"))
	clock.Advance(time.Minute)
	require.NoError(t, s.Insert(ctx, "a"))
	require.NoError(t, s.Insert(ctx, "c"))

	ok, err := s.Contains(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok, "b became the oldest entry once a was refreshed")

	ok, err = s.Contains(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func testRemove(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	s := factory(t, Options{TTL: time.Hour, Capacity: 10})

	require.NoError(t, s.Insert(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "a"))
	require.NoError(t, s.Remove(ctx, "missing"))

	ok, err := s.Contains(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func testConcurrentInsertIfAbsent(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	s := factory(t, Options{TTL: time.Hour, Capacity: 100})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.InsertIfAbsent(ctx, "same")
			if err == nil && inserted {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestOptionsValidation(t *testing.T) {
	_, err := NewMemoryStore(Options{TTL: 0, Capacity: 1})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewMemoryStore(Options{TTL: time.Second, Capacity: 0})
	require.ErrorIs(t, err, ErrInvalidOptions)

	_, err = NewRedisStore(redis.NewClient(&redis.Options{}), "", DefaultOptions)
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRedisStoreExpiresBehindSkewedHead(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	start := clock.Now()
	s := redisFactory(t, Options{TTL: time.Hour, Capacity: 10, Now: clock.Now})

	// A replica running 30 minutes fast inserts first.
	clock.Set(start.Add(30 * time.Minute))
	require.NoError(t, s.Insert(ctx, "fast-replica"))
	clock.Set(start)
	require.NoError(t, s.Insert(ctx, "slow-replica"))

	clock.Set(start.Add(time.Hour + time.Minute))
	n, err := s.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ok, err := s.Contains(ctx, "slow-replica")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Contains(ctx, "fast-replica")
	require.NoError(t, err)
	require.True(t, ok)
}
