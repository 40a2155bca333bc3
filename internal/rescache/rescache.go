// SPDX-License-Identifier: MIT

// Package rescache caches resolved stream URLs on the shared Redis store.
// It has no locking of its own: callers serialize writers through the lease in
// internal/lock, and only the lease holder writes an entry.
package rescache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/streamvault/streamgate/internal/log"
	"github.com/streamvault/streamgate/internal/metrics"
)

// TTL is the fixed lifetime of a cached resolution.
const TTL = 3600 * time.Second

// Cache stores resolved URLs keyed by resolution key.
type Cache struct {
	rdb    *redis.Client
	logger zerolog.Logger
	stats  struct {
		hits   atomic.Int64
		misses atomic.Int64
	}
}

// New returns a cache backed by rdb.
func New(rdb *redis.Client) *Cache {
	return &Cache{
		rdb:    rdb,
		logger: log.WithComponent("rescache"),
	}
}

// Get returns the cached URL for key, or "" and false on a miss. Store errors
// are treated as misses: a failed read must not fail the request, the caller
// just resolves again.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	url, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		c.stats.misses.Add(1)
		return "", false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache read failed, treating as miss")
		c.stats.misses.Add(1)
		return "", false
	}
	c.stats.hits.Add(1)
	metrics.ResolutionCacheHitTotal.Inc()
	return url, true
}

// Put stores a resolved URL under key with the given TTL. Overwriting an
// existing entry is allowed; the write is idempotent.
func (c *Cache) Put(ctx context.Context, key, url string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, url, ttl).Err()
}

// Stats returns hit/miss counts since startup.
func (c *Cache) Stats() (hits, misses int64) {
	return c.stats.hits.Load(), c.stats.misses.Load()
}
