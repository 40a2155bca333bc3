// SPDX-License-Identifier: MIT

package api

import (
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/streamvault/streamgate/internal/log"
)

const headerRequestID = "X-Request-Id"

// proxyTrust decides whether forwarding headers from a peer may be believed.
type proxyTrust struct {
	nets []*net.IPNet
}

// newProxyTrust parses a CSV of CIDRs. Invalid entries are dropped; an empty
// list means no proxy is ever trusted.
func newProxyTrust(csv string) *proxyTrust {
	t := &proxyTrust{}
	for _, part := range strings.Split(csv, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, ipnet, err := net.ParseCIDR(p); err == nil {
			t.nets = append(t.nets, ipnet)
		}
	}
	return t
}

func (t *proxyTrust) trusted(remote string) bool {
	if len(t.nets) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP determines the originating address. Forwarding headers count only
// when the direct peer is a trusted proxy; otherwise a client could spoof its
// identity into someone else's rate-limit bucket.
func (t *proxyTrust) clientIP(r *http.Request) string {
	if t.trusted(r.RemoteAddr) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			return xr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

// requestID adds a correlation ID to every request.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(headerRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverer keeps a panicking handler from taking the process down.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 8192)
				n := runtime.Stack(buf, false)

				logger := log.WithComponentFromContext(r.Context(), "panic-recovery")
				logger.Error().
					Str("event", "panic.recovered").
					Str("method", r.Method).
					Str("path", maskSessionToken(r.URL.Path)).
					Interface("panic_value", rec).
					Str("stack_trace", string(buf[:n])).
					Msg("panic recovered in HTTP handler")

				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// noStore marks every gated response uncacheable. Resolved URLs are
// per-caller and short-lived; an intermediary cache would replay one caller's
// provider link to another.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
