// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the streamgate daemon: the gated
// resolution routes, the static fallback videos, and the operational probes.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamvault/streamgate/internal/config"
	"github.com/streamvault/streamgate/internal/health"
	"github.com/streamvault/streamgate/internal/ratelimit"
	"github.com/streamvault/streamgate/internal/resolve"
	"github.com/streamvault/streamgate/internal/session"
	"github.com/streamvault/streamgate/internal/worker"
)

// Server wires the gating layer to the HTTP routes.
type Server struct {
	cfg        config.AppConfig
	codec      *session.Codec
	coord      *resolve.Coordinator
	limiter    *ratelimit.Limiter
	health     *health.Manager
	supervisor *worker.Supervisor
	proxies    *proxyTrust
	staticFS   http.FileSystem
}

// Deps carries the server's constructor dependencies.
type Deps struct {
	Config     config.AppConfig
	Codec      *session.Codec
	Coord      *resolve.Coordinator
	Limiter    *ratelimit.Limiter
	Health     *health.Manager
	Supervisor *worker.Supervisor
	// StaticFS serves /static/*. Nil disables the static routes, which the
	// tests use.
	StaticFS http.FileSystem
}

// New creates the HTTP server.
func New(deps Deps) *Server {
	return &Server{
		cfg:        deps.Config,
		codec:      deps.Codec,
		coord:      deps.Coord,
		limiter:    deps.Limiter,
		health:     deps.Health,
		supervisor: deps.Supervisor,
		proxies:    newProxyTrust(deps.Config.TrustedProxies),
		staticFS:   deps.StaticFS,
	}
}

// Router builds the chi router with the canonical middleware stack. Order
// matters: the recoverer is outermost, the no-store headers apply to every
// gated response, and the global burst limit sits in front of the
// Redis-backed per-route limiter.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(noStore)
	r.Use(httprate.Limit(300, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	if s.staticFS != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(s.staticFS)))
	}

	r.Get("/{token}/stream", s.gate(RouteConfig{
		AuthRequired: true,
		Policy:       ratelimit.Policy{Limit: 50, Window: time.Minute, Scope: "stream"},
	}, s.handleStream))

	r.Get("/{token}/delete_all_watchlist", s.gate(RouteConfig{
		AuthRequired: true,
		Policy:       ratelimit.Policy{Limit: 5, Window: time.Minute, Scope: "watchlist"},
	}, s.handlePurgeWatchlist))

	return r
}
