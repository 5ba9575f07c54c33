package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/metrics"
)

// Cache is the capability the scoring pipeline depends on. The two-tier
// composite satisfies it, and so does a single in-memory tier, which is
// what tests substitute.
type Cache interface {
	// Get unmarshals the cached value into dest. ok=false means absent.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set writes the value to every available tier.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// GetOrCompute returns the cached value or runs compute exactly once
	// per key across concurrent callers, all of whom receive its result.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{},
		compute func(ctx context.Context) (interface{}, error)) error
}

// L2Store is the out-of-process tier consumed by TieredCache. *RedisStore
// implements it; tests use fakes.
type L2Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// TieredCache composes the in-process L1 with a shared L2. L2 outages
// degrade to L1-only operation with a rate-limited warning, never a hard
// failure of the scoring path.
type TieredCache struct {
	l1     *LRUCache
	l2     L2Store
	logger *zap.Logger
	group  singleflight.Group
	l2Warn rate.Sometimes

	// distributed enables the SetNX-based cross-process lock inside
	// GetOrCompute. The in-process guarantee holds either way.
	distributed bool
	lockTTL     time.Duration
}

// NewTieredCache builds the composite. l2 may be nil for L1-only setups.
func NewTieredCache(l1 *LRUCache, l2 L2Store, logger *zap.Logger, distributed bool) *TieredCache {
	return &TieredCache{
		l1:          l1,
		l2:          l2,
		logger:      logger,
		l2Warn:      rate.Sometimes{First: 1, Interval: 10 * time.Second},
		distributed: distributed,
		lockTTL:     5 * time.Second,
	}
}

// Get consults L1, then L2; an L2 hit backfills L1.
func (c *TieredCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, found := c.lookup(ctx, key)
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed for %s: %w", key, err)
	}
	return true, nil
}

// Set writes through both tiers. An L2 write failure is logged and ignored;
// the entry stays readable from L1.
func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed for %s: %w", key, err)
	}
	c.store(ctx, key, data, ttl)
	return nil
}

// GetOrCompute provides single-flight semantics per key: concurrent callers
// for a missing key collapse into one execution of compute, and every caller
// unmarshals the same bytes, so results are byte-identical.
func (c *TieredCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest interface{},
	compute func(ctx context.Context) (interface{}, error)) error {

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if data, found := c.lookup(ctx, key); found {
			return data, nil
		}
		return c.computeAndStore(ctx, key, ttl, compute)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.([]byte), dest); err != nil {
		return fmt.Errorf("cache unmarshal failed for %s: %w", key, err)
	}
	return nil
}

// lookup reads L1 then L2, backfilling L1 on an L2 hit.
func (c *TieredCache) lookup(ctx context.Context, key string) ([]byte, bool) {
	if data, ok := c.l1.Get(key); ok {
		metrics.CacheRequestsTotal.WithLabelValues("l1", "hit").Inc()
		return data, true
	}
	metrics.CacheRequestsTotal.WithLabelValues("l1", "miss").Inc()

	if c.l2 == nil {
		return nil, false
	}

	data, err := c.l2.Get(ctx, key)
	if err != nil {
		var notFound ErrKeyNotFound
		if errors.As(err, &notFound) {
			metrics.CacheRequestsTotal.WithLabelValues("l2", "miss").Inc()
			return nil, false
		}
		metrics.CacheRequestsTotal.WithLabelValues("l2", "error").Inc()
		c.warnL2(key, err)
		return nil, false
	}

	metrics.CacheRequestsTotal.WithLabelValues("l2", "hit").Inc()
	c.backfillL1(ctx, key, data)
	return data, true
}

// backfillL1 copies an L2 hit into L1 for the entry's REMAINING lifetime,
// read back from L2. Backfilling with a fresh TTL would let an entry
// outlive the expiry it was written with.
func (c *TieredCache) backfillL1(ctx context.Context, key string, data []byte) {
	ttl, err := c.l2.TTL(ctx, key)
	if err != nil || ttl <= 0 {
		return
	}
	c.l1.Set(key, data, ttl)
}

func (c *TieredCache) store(ctx context.Context, key string, data []byte, ttl time.Duration) {
	c.l1.Set(key, data, ttl)
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, key, data, ttl); err != nil {
		c.warnL2(key, err)
	}
}

// warnL2 reports a degraded L2. Under an outage every request path hits
// this, so the log is capped rather than emitted per call.
func (c *TieredCache) warnL2(key string, err error) {
	c.l2Warn.Do(func() {
		c.logger.Warn("l2 cache unavailable, degrading to l1-only",
			zap.String("key", key),
			zap.Error(err))
	})
}

func (c *TieredCache) computeAndStore(ctx context.Context, key string, ttl time.Duration,
	compute func(ctx context.Context) (interface{}, error)) ([]byte, error) {

	// Optional cross-process hardening: first process to grab the lock
	// computes; the rest poll L2 briefly before computing locally. The
	// lock is released as soon as the flight settles so waiters stop
	// polling early instead of sitting out the lock TTL.
	if c.distributed && c.l2 != nil {
		acquired, err := c.l2.SetNX(ctx, LockPrefix+key, []byte("1"), c.lockTTL)
		if err == nil && acquired {
			defer func() { _ = c.l2.Delete(ctx, LockPrefix+key) }()
		}
		if err == nil && !acquired {
			if data, ok := c.awaitRemote(ctx, key); ok {
				return data, nil
			}
		}
	}

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache marshal failed for %s: %w", key, err)
	}
	c.store(ctx, key, data, ttl)
	return data, nil
}

// awaitRemote polls L2 for a value another process is computing. Bounded by
// the caller's deadline and a handful of short sleeps; gives up to a local
// compute rather than waiting out the remote flight.
func (c *TieredCache) awaitRemote(ctx context.Context, key string) ([]byte, bool) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 5; i++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
			if data, err := c.l2.Get(ctx, key); err == nil {
				c.backfillL1(ctx, key, data)
				return data, true
			}
		}
	}
	return nil, false
}
