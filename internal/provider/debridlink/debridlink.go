// SPDX-License-Identifier: MIT

// Package debridlink resolves torrents through the Debrid-Link API. It is the
// registry's default service.
package debridlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamvault/streamgate/internal/provider"
	"github.com/streamvault/streamgate/internal/session"
)

const defaultBaseURL = "https://debrid-link.com/api/v2"

type seedboxFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

type seedboxTorrent struct {
	ID         string        `json:"id"`
	HashString string        `json:"hashString"`
	Status     int           `json:"status"`
	Files      []seedboxFile `json:"files"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Value   json.RawMessage `json:"value"`
}

// Resolver implements provider.Resolver and provider.WatchlistPurger.
type Resolver struct {
	base string
	http *http.Client
}

// NewResolver creates the Debrid-Link backend.
func NewResolver() *Resolver {
	return &Resolver{
		base: defaultBaseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Service implements provider.Resolver.
func (r *Resolver) Service() string { return "debridlink" }

func (r *Resolver) call(ctx context.Context, token, method, path string, form url.Values, out any) error {
	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, r.base+path, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, r.base+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("debridlink: %s %s: decoding response: %w", method, path, err)
	}
	if !envelope.Success {
		return fmt.Errorf("debridlink: %s %s: %s", method, path, envelope.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Value, out)
}

// Resolve adds the magnet to the seedbox and returns the download URL of the
// requested file.
func (r *Resolver) Resolve(ctx context.Context, req provider.Request) (string, error) {
	token := req.User.StreamingProvider.AccountFingerprint()

	var tor seedboxTorrent
	form := url.Values{"url": {req.MagnetLink}, "async": {"true"}}
	if err := r.call(ctx, token, http.MethodPost, "/seedbox/add", form, &tor); err != nil {
		return "", fmt.Errorf("adding magnet: %w", err)
	}
	if len(tor.Files) == 0 {
		return "", provider.NewFailure("Torrent is not downloaded yet.", provider.FallbackAlreadyQueued)
	}

	if req.FileIndex >= 0 && req.FileIndex < len(tor.Files) {
		return tor.Files[req.FileIndex].DownloadURL, nil
	}
	if req.Filename != "" {
		for _, f := range tor.Files {
			if f.Name == req.Filename {
				return f.DownloadURL, nil
			}
		}
	}
	largest := 0
	for i, f := range tor.Files {
		if f.Size > tor.Files[largest].Size {
			largest = i
		}
	}
	return tor.Files[largest].DownloadURL, nil
}

// PurgeWatchlist removes every torrent from the seedbox.
func (r *Resolver) PurgeWatchlist(ctx context.Context, user session.UserConfig) error {
	token := user.StreamingProvider.AccountFingerprint()

	var torrents []seedboxTorrent
	if err := r.call(ctx, token, http.MethodGet, "/seedbox/list", nil, &torrents); err != nil {
		return fmt.Errorf("listing seedbox: %w", err)
	}
	for _, tor := range torrents {
		if err := r.call(ctx, token, http.MethodDelete, "/seedbox/"+url.PathEscape(tor.ID)+"/remove", nil, nil); err != nil {
			return fmt.Errorf("removing torrent %s: %w", tor.ID, err)
		}
	}
	return nil
}

// SetBaseURL points the resolver at a test server.
func (r *Resolver) SetBaseURL(base string) {
	r.base = strings.TrimRight(base, "/")
}
