// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"

	"github.com/streamvault/streamgate/internal/log"
	"github.com/streamvault/streamgate/internal/resolve"
)

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, gr gatedRequest) {
	infoHash := r.URL.Query().Get("info_hash")
	if infoHash == "" {
		writeError(w, http.StatusBadRequest, "info_hash is required.")
		return
	}
	season, ok := queryInt(r, "season")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid season.")
		return
	}
	episode, ok := queryInt(r, "episode")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid episode.")
		return
	}

	out := s.coord.ResolveStream(r.Context(), resolve.StreamRequest{
		ClientIP: gr.clientIP,
		Token:    gr.token,
		User:     &gr.user,
		InfoHash: infoHash,
		Season:   season,
		Episode:  episode,
	})

	if isRedirect(out.Status) && s.supervisor != nil {
		s.supervisor.NoteCompletion()
	}
	s.writeOutcome(w, r, out)
}

func (s *Server) handlePurgeWatchlist(w http.ResponseWriter, r *http.Request, gr gatedRequest) {
	out := s.coord.PurgeWatchlist(r.Context(), resolve.StreamRequest{
		ClientIP: gr.clientIP,
		Token:    gr.token,
		User:     &gr.user,
	})
	s.writeOutcome(w, r, out)
}

// writeOutcome maps a coordinator outcome onto the wire. A client that hung
// up while the resolution was in flight gets 204: the result is discarded and
// nothing needs correcting, since no partial state precedes a success.
func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, out resolve.Outcome) {
	if r.Context().Err() != nil {
		logger := log.WithComponentFromContext(r.Context(), "http")
		logger.Debug().Msg("client disconnected before response")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if isRedirect(out.Status) {
		http.Redirect(w, r, out.Location, out.Status)
		return
	}
	writeError(w, out.Status, out.Message)
}

func isRedirect(status int) bool {
	return status == http.StatusFound || status == http.StatusTemporaryRedirect
}

// queryInt parses an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
