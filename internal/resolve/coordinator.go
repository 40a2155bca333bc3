// SPDX-License-Identifier: MIT

// Package resolve coordinates stream resolutions: it gates each request
// through the stateless session, the cached result and a lease on the shared
// store, so that at most one resolution per distinct (client, session,
// content, file) key is in flight anywhere.
package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamvault/streamgate/internal/lock"
	"github.com/streamvault/streamgate/internal/log"
	"github.com/streamvault/streamgate/internal/metrics"
	"github.com/streamvault/streamgate/internal/provider"
	"github.com/streamvault/streamgate/internal/rescache"
	"github.com/streamvault/streamgate/internal/session"
	"github.com/streamvault/streamgate/internal/stream"
)

const (
	// LockTTL bounds a resolution attempt. A crashed holder blocks its key
	// for at most this long.
	LockTTL = 60 * time.Second
	// lockSuffix distinguishes the lease key from the cache key.
	lockSuffix = "_locked"
)

// Coordinator orchestrates the single-flight get-or-compute protocol.
type Coordinator struct {
	codec    *session.Codec
	streams  stream.Store
	cache    *rescache.Cache
	locks    *lock.Manager
	registry *provider.Registry
	hostURL  string
	logger   zerolog.Logger
}

// New wires a coordinator.
func New(codec *session.Codec, streams stream.Store, cache *rescache.Cache, locks *lock.Manager, registry *provider.Registry, hostURL string) *Coordinator {
	return &Coordinator{
		codec:    codec,
		streams:  streams,
		cache:    cache,
		locks:    locks,
		registry: registry,
		hostURL:  strings.TrimRight(hostURL, "/"),
		logger:   log.WithComponent("resolve"),
	}
}

// StreamRequest identifies one resolution target.
type StreamRequest struct {
	ClientIP string
	Token    string
	// User carries the middleware-decoded session when available; when nil
	// the coordinator decodes Token itself.
	User     *session.UserConfig
	InfoHash string
	Season   int
	Episode  int
}

// ResolutionKey returns the deterministic cache/lock key fingerprinting the
// (client, session, content, file) target.
func ResolutionKey(clientIP, token, infoHash, filename string, fileIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%s_%s_%s_%d", clientIP, token, infoHash, filename, fileIndex)))
	return "resolution:" + hex.EncodeToString(sum[:])
}

// FallbackVideoURL maps a fallback video identifier to its static URL.
func (c *Coordinator) FallbackVideoURL(id string) string {
	return c.hostURL + "/static/exceptions/" + id
}

func (c *Coordinator) decode(req StreamRequest) (session.UserConfig, bool) {
	if req.User != nil {
		return *req.User, true
	}
	user, err := c.codec.Decode(req.Token)
	if err != nil {
		return session.UserConfig{}, false
	}
	return user, true
}

// ResolveStream runs the resolution state machine for one request. Every
// terminal state maps to exactly one Outcome; a resolution attempt never
// surfaces a bare 5xx.
func (c *Coordinator) ResolveStream(ctx context.Context, req StreamRequest) Outcome {
	user, ok := c.decode(req)
	if !ok {
		metrics.ResolutionTotal.WithLabelValues("unauthorized").Inc()
		return Unauthorized()
	}
	if user.StreamingProvider == nil {
		metrics.ResolutionTotal.WithLabelValues("bad_request").Inc()
		return BadRequest("No streaming provider set.")
	}

	st, err := c.streams.GetByInfoHash(ctx, req.InfoHash)
	if err != nil {
		if !errors.Is(err, stream.ErrNotFound) {
			c.logger.Error().Err(err).Str("info_hash", req.InfoHash).Msg("stream lookup failed")
		}
		metrics.ResolutionTotal.WithLabelValues("bad_request").Inc()
		return BadRequest("Stream not found.")
	}

	filename := st.Filename
	fileIndex := st.FileIndex
	if ep := st.GetEpisode(req.Season, req.Episode); ep != nil {
		filename = ep.Filename
		fileIndex = ep.FileIndex
	}

	key := ResolutionKey(req.ClientIP, req.Token, req.InfoHash, filename, fileIndex)

	if url, hit := c.cache.Get(ctx, key); hit {
		metrics.ResolutionTotal.WithLabelValues("cache_hit").Inc()
		return Redirect(url)
	}

	// A single set-if-absent attempt; contenders back off instead of queueing.
	lease, acquired, err := c.locks.Acquire(ctx, key+lockSuffix, LockTTL)
	if err != nil {
		// Lock layer is fail-closed: an unreachable store yields backpressure,
		// never an unserialized resolution.
		c.logger.Error().Err(err).Str("info_hash", req.InfoHash).Msg("lock store unreachable")
		metrics.ResolutionTotal.WithLabelValues("lock_error").Inc()
		return TooManyRequests()
	}
	if !acquired {
		metrics.LockContentionTotal.Inc()
		metrics.ResolutionTotal.WithLabelValues("lock_busy").Inc()
		return TooManyRequests()
	}

	resolver, err := c.registry.Resolver(user.StreamingProvider.Service)
	if err != nil {
		c.logger.Error().Err(err).Msg("resolver dispatch failed")
		metrics.ResolutionTotal.WithLabelValues("error").Inc()
		return TemporaryRedirect(c.FallbackVideoURL(provider.FallbackAPIError))
	}

	url, err := resolver.Resolve(ctx, provider.Request{
		InfoHash:   req.InfoHash,
		MagnetLink: st.MagnetLink(),
		User:       user,
		Filename:   filename,
		FileIndex:  fileIndex,
		Attempt:    1,
		Episode:    req.Episode,
		ClientIP:   req.ClientIP,
	})
	if err != nil {
		// The lease is deliberately left to expire: a backend that just
		// failed for this key will most likely fail again, and the
		// remaining TTL damps retry stampedes against it.
		if failure, classified := provider.AsFailure(err); classified {
			metrics.ProviderFailureTotal.WithLabelValues(resolver.Service()).Inc()
			metrics.ResolutionTotal.WithLabelValues("provider_failure").Inc()
			c.logger.Error().
				Str("info_hash", req.InfoHash).
				Str("service", resolver.Service()).
				Str("fallback_video", failure.FallbackVideo).
				Msg(failure.Message)
			return TemporaryRedirect(c.FallbackVideoURL(failure.FallbackVideo))
		}
		metrics.ResolutionTotal.WithLabelValues("error").Inc()
		c.logger.Error().Err(err).
			Str("info_hash", req.InfoHash).
			Str("service", resolver.Service()).
			Msg("unclassified resolution error")
		return TemporaryRedirect(c.FallbackVideoURL(provider.FallbackAPIError))
	}

	// The cache write happens before the release, so a contender that lost
	// the lock race and re-checks the cache observes the fresh result.
	if err := c.cache.Put(ctx, key, url, rescache.TTL); err != nil {
		c.logger.Warn().Err(err).Str("info_hash", req.InfoHash).Msg("caching resolved URL failed")
	}
	if err := lease.Release(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("lock release failed, lease will expire")
	}

	metrics.ResolutionTotal.WithLabelValues("resolved").Inc()
	return Redirect(url)
}

// PurgeWatchlist runs the bulk-cleanup variant: no cache, no lock, a direct
// dispatch to the backend's purge capability.
func (c *Coordinator) PurgeWatchlist(ctx context.Context, req StreamRequest) Outcome {
	user, ok := c.decode(req)
	if !ok {
		return Unauthorized()
	}
	if user.StreamingProvider == nil {
		return BadRequest("No streaming provider set.")
	}

	purger, supported := c.registry.Purger(user.StreamingProvider.Service)
	if !supported {
		return BadRequest("Provider does not support this action.")
	}

	if err := purger.PurgeWatchlist(ctx, user); err != nil {
		if failure, classified := provider.AsFailure(err); classified {
			c.logger.Error().Str("service", user.StreamingProvider.Service).Msg(failure.Message)
			return Redirect(c.FallbackVideoURL(failure.FallbackVideo))
		}
		c.logger.Error().Err(err).Str("service", user.StreamingProvider.Service).Msg("watchlist purge failed")
		return Redirect(c.FallbackVideoURL(provider.FallbackAPIError))
	}
	return Redirect(c.FallbackVideoURL(provider.FallbackWatchlistDeleted))
}
