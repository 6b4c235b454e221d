// Package cache memoises similarity query results in Redis. Keys embed the
// corpus fingerprint, so entries written for one corpus are never served for
// another.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

const keyPrefix = "verse:similar:"

// Store is the key-value backend. Get reports a missing key with
// pkgredis.ErrNotFound. *pkgredis.Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    int64                   `json:"hits"`
	Misses  int64                   `json:"misses"`
	Errors  int64                   `json:"errors"`
	Breaker resilience.BreakerStats `json:"breaker"`
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// QueryCache fronts the resolver. Store failures never fail a query: the
// result is computed and returned uncached.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	failed  atomic.Int64
}

func New(store Store, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		timeout: cfg.Timeout,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			IsFailure: func(err error) bool {
				return err != nil && !errors.Is(err, pkgredis.ErrNotFound)
			},
		}),
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get looks up a cached result.
func (c *QueryCache) Get(ctx context.Context, fingerprint string, loc corpus.Locator, topN int) ([]resolver.Match, bool) {
	key := Key(fingerprint, loc, topN)
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = resilience.WithTimeout(ctx, c.timeout, "cache get", func(ctx context.Context) ([]byte, error) {
			return c.store.Get(ctx, key)
		})
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, pkgredis.ErrNotFound):
		c.misses.Add(1)
		return nil, false
	default:
		c.recordError("cache get failed", key, err)
		c.misses.Add(1)
		return nil, false
	}
	var matches []resolver.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		c.recordError("cache entry unreadable", key, err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return matches, true
}

// Set stores a result.
func (c *QueryCache) Set(ctx context.Context, fingerprint string, loc corpus.Locator, topN int, matches []resolver.Match) {
	key := Key(fingerprint, loc, topN)
	data, err := json.Marshal(matches)
	if err != nil {
		c.recordError("cache marshal failed", key, err)
		return
	}
	err = c.breaker.Execute(func() error {
		_, err := resilience.WithTimeout(ctx, c.timeout, "cache set", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.store.Set(ctx, key, data, c.ttl)
		})
		return err
	})
	if err != nil {
		c.recordError("cache set failed", key, err)
	}
}

// GetOrCompute returns the cached result or computes, stores and returns it.
// Concurrent misses for the same key share one computation. Errors from
// compute are returned as-is and never cached.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	loc corpus.Locator,
	topN int,
	compute func() ([]resolver.Match, error),
) ([]resolver.Match, bool, error) {
	if matches, ok := c.Get(ctx, fingerprint, loc, topN); ok {
		return matches, true, nil
	}
	key := Key(fingerprint, loc, topN)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		matches, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, fingerprint, loc, topN, matches)
		return matches, nil
	})
	if err != nil {
		return []resolver.Match{}, false, err
	}
	return val.([]resolver.Match), false, nil
}

// Invalidate removes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.DeleteByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Errors:  c.failed.Load(),
		Breaker: c.breaker.Stats(),
	}
}

// BreakerState exposes the circuit state for metrics.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

func (c *QueryCache) recordError(msg, key string, err error) {
	c.failed.Add(1)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug(msg, "key", key, "error", err)
		return
	}
	c.logger.Warn(msg, "key", key, "error", err)
}

// Key builds the cache key for one query.
func Key(fingerprint string, loc corpus.Locator, topN int) string {
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}
	return fmt.Sprintf("%s%s:%d:%d:%d:%d", keyPrefix, fingerprint, loc.Group, loc.Subgroup, loc.Position, topN)
}
