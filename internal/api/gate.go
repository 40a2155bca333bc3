// SPDX-License-Identifier: MIT

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/streamvault/streamgate/internal/ratelimit"
	"github.com/streamvault/streamgate/internal/session"
)

// RouteConfig is the gating metadata a route declares at registration time.
// The gate reads it uniformly; there is no per-handler auth or rate-limit
// logic anywhere else.
type RouteConfig struct {
	AuthRequired bool
	Policy       ratelimit.Policy
}

// gatedRequest is what the gate hands to a route handler after admission.
type gatedRequest struct {
	user     session.UserConfig
	token    string
	clientIP string
}

// gate decodes the session token, enforces the instance password and the
// route's rate-limit policy, and only then invokes the handler. Rejections
// never reach the coordinator.
func (s *Server) gate(rc RouteConfig, fn func(http.ResponseWriter, *http.Request, gatedRequest)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		user, err := s.codec.Decode(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		// Private instances bind every gated route to the operator password
		// carried inside the session itself.
		if rc.AuthRequired && s.passwordRequired() && user.APIPassword != s.cfg.APIPassword {
			writeError(w, http.StatusUnauthorized, "Invalid API password.")
			return
		}

		ip := s.proxies.clientIP(r)
		id := ratelimit.Identity{IP: ip, AccountFingerprint: user.StreamingProvider.AccountFingerprint()}
		if !s.limiter.Allow(r.Context(), id, rc.Policy) {
			writeError(w, http.StatusTooManyRequests, "Too many requests.")
			return
		}

		fn(w, r, gatedRequest{user: user, token: token, clientIP: ip})
	}
}

func (s *Server) passwordRequired() bool {
	return s.cfg.APIPassword != "" && !s.cfg.PublicInstance
}
