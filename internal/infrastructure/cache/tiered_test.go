package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/config"
)

type testValue struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisStore(&config.RedisConfig{
		Addr:        mr.Addr(),
		DialTimeout: time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

func TestTieredSetGet(t *testing.T) {
	mr, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testValue{Name: "a", Score: 7}, time.Minute))

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, testValue{Name: "a", Score: 7}, got)

	// The write went through to L2 as well.
	assert.True(t, mr.Exists("k"))
}

func TestTieredGetMiss(t *testing.T) {
	_, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), false)

	var got testValue
	found, err := c.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTieredL2HitBackfillsL1(t *testing.T) {
	_, l2 := newTestRedis(t)
	l1 := NewLRUCache(16)
	c := NewTieredCache(l1, l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	// Value present only in L2, as if another process wrote it.
	require.NoError(t, l2.Set(ctx, "k", []byte(`{"name":"b","score":3}`), time.Minute))

	var got testValue
	err := c.GetOrCompute(ctx, "k", time.Minute, &got, func(context.Context) (interface{}, error) {
		t.Fatal("compute must not run on an L2 hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, testValue{Name: "b", Score: 3}, got)

	// Subsequent reads are served from L1.
	_, ok := l1.Get("k")
	assert.True(t, ok)
}

func TestTieredGetOrComputeSingleFlight(t *testing.T) {
	_, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	var computes atomic.Int64
	const callers = 50

	results := make([]testValue, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			err := c.GetOrCompute(ctx, "k", time.Minute, &results[i], func(context.Context) (interface{}, error) {
				computes.Add(1)
				time.Sleep(20 * time.Millisecond) // widen the race window
				return testValue{Name: "computed", Score: 1}, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), computes.Load())
	for i := 0; i < callers; i++ {
		assert.Equal(t, testValue{Name: "computed", Score: 1}, results[i])
	}
}

func TestTieredComputeErrorNotCached(t *testing.T) {
	_, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	wantErr := assert.AnError
	var got testValue
	err := c.GetOrCompute(ctx, "k", time.Minute, &got, func(context.Context) (interface{}, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// Failure left nothing behind; the next attempt recomputes.
	err = c.GetOrCompute(ctx, "k", time.Minute, &got, func(context.Context) (interface{}, error) {
		return testValue{Name: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Name)
}

func TestTieredDegradesWhenL2Down(t *testing.T) {
	mr, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	mr.Close()

	// Writes and reads keep working through L1.
	require.NoError(t, c.Set(ctx, "k", testValue{Name: "a"}, time.Minute))

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", got.Name)

	var computed testValue
	err = c.GetOrCompute(ctx, "other", time.Minute, &computed, func(context.Context) (interface{}, error) {
		return testValue{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", computed.Name)
}

func TestTieredL1OnlyWithoutL2(t *testing.T) {
	c := NewTieredCache(NewLRUCache(16), nil, zaptest.NewLogger(t), false)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", testValue{Name: "a"}, time.Minute))

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTieredDistributedLock(t *testing.T) {
	mr, l2 := newTestRedis(t)
	c := NewTieredCache(NewLRUCache(16), l2, zaptest.NewLogger(t), true)
	ctx := context.Background()

	var got testValue
	err := c.GetOrCompute(ctx, "k", time.Minute, &got, func(context.Context) (interface{}, error) {
		// The computing process holds the cross-process lock.
		assert.True(t, mr.Exists(LockPrefix+"k"))
		return testValue{Name: "locked"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "locked", got.Name)

	// The lock is released once the value is stored, so other processes
	// stop polling instead of waiting out the lock TTL.
	assert.True(t, mr.Exists("k"))
	assert.False(t, mr.Exists(LockPrefix+"k"))
}

func TestTieredGetBackfillsL1(t *testing.T) {
	_, l2 := newTestRedis(t)
	l1 := NewLRUCache(16)
	c := NewTieredCache(l1, l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte(`{"name":"a","score":1}`), time.Minute))

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)

	// The plain read path backfills too, not just GetOrCompute.
	_, ok := l1.Get("k")
	assert.True(t, ok)
}

func TestTieredBackfillUsesRemainingTTL(t *testing.T) {
	mr, l2 := newTestRedis(t)
	l1 := NewLRUCache(16)
	now := time.Now()
	l1.now = func() time.Time { return now }
	c := NewTieredCache(l1, l2, zaptest.NewLogger(t), false)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte(`{"name":"a","score":1}`), time.Minute))
	mr.FastForward(45 * time.Second) // 15s of lifetime left in L2

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, found)

	// The backfilled entry carries the residue, not a fresh minute; it
	// must not outlive the expiry the value was originally written with.
	_, ok := l1.Get("k")
	require.True(t, ok)
	now = now.Add(20 * time.Second)
	_, ok = l1.Get("k")
	assert.False(t, ok)
}

func TestTieredL2WarningNotPerCascade(t *testing.T) {
	mr, l2 := newTestRedis(t)
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewTieredCache(NewLRUCache(16), l2, zap.New(core), false)

	mr.Close()

	const callers = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			var got testValue
			err := c.GetOrCompute(context.Background(), "k", time.Minute, &got, func(context.Context) (interface{}, error) {
				return testValue{Name: "fresh"}, nil
			})
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	// One warning for the outage, not one per collapsed caller.
	assert.Equal(t, 1, logs.FilterMessage("l2 cache unavailable, degrading to l1-only").Len())
}

func TestRedisStoreTTL(t *testing.T) {
	mr, l2 := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("1"), time.Minute))
	mr.FastForward(20 * time.Second)

	ttl, err := l2.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, ttl)

	// Missing keys report a non-positive lifetime.
	ttl, err = l2.TTL(ctx, "absent")
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, time.Duration(0))
}

func TestRedisStoreKeyNotFound(t *testing.T) {
	_, l2 := newTestRedis(t)

	_, err := l2.Get(context.Background(), "absent")
	var notFound ErrKeyNotFound
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, "absent", notFound.Key)
}

func TestRedisStoreSetNX(t *testing.T) {
	_, l2 := newTestRedis(t)
	ctx := context.Background()

	ok, err := l2.SetNX(ctx, "lock", []byte("1"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l2.SetNX(ctx, "lock", []byte("2"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
