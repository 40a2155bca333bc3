// SPDX-License-Identifier: MIT

// Package torbox resolves torrents through the TorBox API.
package torbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamvault/streamgate/internal/provider"
)

const defaultBaseURL = "https://api.torbox.app/v1/api"

type torrentFile struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	ShortName string `json:"short_name"`
}

type torrent struct {
	ID           int           `json:"id"`
	Hash         string        `json:"hash"`
	DownloadDone bool          `json:"download_finished"`
	Files        []torrentFile `json:"files"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Detail  string          `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// Resolver implements provider.Resolver for TorBox.
type Resolver struct {
	base string
	http *http.Client
}

// NewResolver creates the TorBox backend.
func NewResolver() *Resolver {
	return &Resolver{
		base: defaultBaseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Service implements provider.Resolver.
func (r *Resolver) Service() string { return "torbox" }

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
		return fmt.Errorf("torbox: %s %s: decoding response: %w", method, path, err)
	}
	if !envelope.Success {
		return fmt.Errorf("torbox: %s %s: %s", method, path, envelope.Detail)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

// Resolve adds the magnet if needed and requests a direct download link for
// the chosen file.
func (r *Resolver) Resolve(ctx context.Context, req provider.Request) (string, error) {
	token := req.User.StreamingProvider.Token

	var torrents []torrent
	if err := r.call(ctx, token, http.MethodGet, "/torrents/mylist", nil, &torrents); err != nil {
		return "", fmt.Errorf("listing torrents: %w", err)
	}

	var tor *torrent
	for i := range torrents {
		if strings.EqualFold(torrents[i].Hash, req.InfoHash) {
			tor = &torrents[i]
			break
		}
	}
	if tor == nil {
		form := url.Values{"magnet": {req.MagnetLink}}
		if err := r.call(ctx, token, http.MethodPost, "/torrents/createtorrent", form, nil); err != nil {
			return "", fmt.Errorf("adding magnet: %w", err)
		}
		return "", provider.NewFailure("Torrent download started, not ready yet.", provider.FallbackAlreadyQueued)
	}
	if !tor.DownloadDone {
		return "", provider.NewFailure("Torrent is not downloaded yet.", provider.FallbackAlreadyQueued)
	}
	if len(tor.Files) == 0 {
		return "", provider.NewFailure("No matching file available for this torrent.", provider.FallbackNoMatchingFile)
	}

	fileID := tor.Files[0].ID
	if req.FileIndex >= 0 && req.FileIndex < len(tor.Files) {
		fileID = tor.Files[req.FileIndex].ID
	} else if req.Filename != "" {
		for _, f := range tor.Files {
			if f.ShortName == req.Filename || f.Name == req.Filename {
				fileID = f.ID
				break
			}
		}
	} else {
		largest := tor.Files[0]
		for _, f := range tor.Files {
			if f.Size > largest.Size {
				largest = f
			}
		}
		fileID = largest.ID
	}

	var link string
	q := fmt.Sprintf("/torrents/requestdl?torrent_id=%d&file_id=%d", tor.ID, fileID)
	if err := r.call(ctx, token, http.MethodGet, q, nil, &link); err != nil {
		return "", fmt.Errorf("requesting download link: %w", err)
	}
	return link, nil
}

// SetBaseURL points the resolver at a test server.
func (r *Resolver) SetBaseURL(base string) {
	r.base = strings.TrimRight(base, "/")
}
