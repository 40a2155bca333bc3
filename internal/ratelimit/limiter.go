// SPDX-License-Identifier: MIT

// Package ratelimit implements per-request admission control over the shared
// Redis store, so the window is enforced across all process instances.
package ratelimit

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/streamvault/streamgate/internal/log"
	"github.com/streamvault/streamgate/internal/metrics"
)

const (
	// DefaultLimit and DefaultWindow apply to routes that declare a rate limit
	// without overriding them.
	DefaultLimit  = 50
	DefaultWindow = 60 * time.Second
	// DefaultScope buckets routes that do not declare their own scope.
	DefaultScope = "default"
)

// Policy is the rate-limit metadata a route declares at registration time.
type Policy struct {
	Limit  int
	Window time.Duration
	Scope  string
	Exempt bool // route opts out of rate limiting entirely
}

// DefaultPolicy returns the policy applied to routes that declare none.
func DefaultPolicy() Policy {
	return Policy{Limit: DefaultLimit, Window: DefaultWindow, Scope: DefaultScope}
}

// normalized fills zero fields with defaults.
func (p Policy) normalized() Policy {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Scope == "" {
		p.Scope = DefaultScope
	}
	return p
}

// Identity is the caller identity a counter is keyed by: the client network
// address plus, when a provider account is configured, its credential
// fingerprint, so distinct accounts behind one NAT get distinct buckets.
type Identity struct {
	IP                 string
	AccountFingerprint string
}

// hash buckets the identity with FNV-1a. Fast and non-cryptographic: this is a
// bucketing key, not a security boundary.
func (id Identity) hash() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.IP))
	if id.AccountFingerprint != "" {
		_, _ = h.Write([]byte("-"))
		_, _ = h.Write([]byte(id.AccountFingerprint))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Limiter checks request admission against Redis-backed fixed-window counters.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
	logger  zerolog.Logger
}

// New creates a limiter. When enabled is false every request is admitted.
func New(rdb *redis.Client, enabled bool) *Limiter {
	return &Limiter{
		rdb:     rdb,
		enabled: enabled,
		logger:  log.WithComponent("ratelimit"),
	}
}

// Key returns the shared-store key for an identity and scope.
func Key(id Identity, scope string) string {
	return fmt.Sprintf("rate_limit:%s:%s", id.hash(), scope)
}

// Allow reports whether the request is admitted under the route's policy.
//
// The window is fixed, not sliding: the expiry is armed only on the first
// increment of a window, so a sustained request stream cannot postpone the
// reset indefinitely. Store failures admit the request (fail open); the
// gating layer prioritises availability over strict enforcement.
func (l *Limiter) Allow(ctx context.Context, id Identity, p Policy) bool {
	if !l.enabled || p.Exempt {
		return true
	}
	p = p.normalized()
	key := Key(id, p.Scope)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		metrics.RateLimitStoreErrorTotal.Inc()
		l.logger.Error().Err(err).Str("scope", p.Scope).Msg("counter store unreachable, admitting request")
		return true
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, p.Window).Err(); err != nil {
			metrics.RateLimitStoreErrorTotal.Inc()
			l.logger.Error().Err(err).Str("scope", p.Scope).Msg("failed to arm window expiry")
		}
	}
	if count > int64(p.Limit) {
		metrics.RateLimitRejectTotal.WithLabelValues(p.Scope).Inc()
		return false
	}
	return true
}
