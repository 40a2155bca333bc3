// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the streamgate gating layer.
// No high-cardinality labels (no session tokens, info-hashes or request IDs).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RateLimitRejectTotal counts requests denied by the fixed-window limiter.
	RateLimitRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_ratelimit_reject_total",
		Help: "Total requests denied by the rate limiter, by scope.",
	}, []string{"scope"})

	// RateLimitStoreErrorTotal counts shared-store failures in the limiter.
	// These requests are admitted (fail-open) but must stay observable.
	RateLimitStoreErrorTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_ratelimit_store_error_total",
		Help: "Total rate limiter store failures that resulted in fail-open admission.",
	})

	// ResolutionTotal counts coordinator outcomes by terminal state.
	ResolutionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_resolution_total",
		Help: "Total stream resolution attempts, by outcome.",
	}, []string{"outcome"})

	// ResolutionCacheHitTotal counts resolutions served from the URL cache.
	ResolutionCacheHitTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_resolution_cache_hit_total",
		Help: "Total resolutions served from the cached URL without a provider call.",
	})

	// LockContentionTotal counts resolutions rejected because the lease was held.
	LockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamgate_lock_contention_total",
		Help: "Total resolution requests turned away while another resolution held the lease.",
	})

	// ProviderFailureTotal counts classified provider failures by service.
	ProviderFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamgate_provider_failure_total",
		Help: "Total classified provider failures, by service.",
	}, []string{"service"})
)
