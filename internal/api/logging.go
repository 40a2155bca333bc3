// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/streamvault/streamgate/internal/log"
)

const maskedToken = "***MASKED***"

// knownTopLevel lists the path roots that are not session tokens.
var knownTopLevel = map[string]struct{}{
	"healthz": {},
	"readyz":  {},
	"metrics": {},
	"static":  {},
}

// maskSessionToken replaces the token path segment so encrypted sessions
// never land in logs.
func maskSessionToken(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return path
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if _, ok := knownTopLevel[parts[0]]; ok {
		return path
	}
	if len(parts) == 1 {
		return "/" + maskedToken
	}
	return "/" + maskedToken + "/" + parts[1]
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// accessLog emits one structured entry per request with the token masked.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		logger.Info().
			Str("method", r.Method).
			Str("path", maskSessionToken(r.URL.Path)).
			Str("remote", s.proxies.clientIP(r)).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
