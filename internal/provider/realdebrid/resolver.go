// SPDX-License-Identifier: MIT

package realdebrid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streamvault/streamgate/internal/provider"
	"github.com/streamvault/streamgate/internal/session"
)

// Resolver implements provider.Resolver and provider.WatchlistPurger for
// Real-Debrid.
type Resolver struct {
	pollInterval time.Duration

	// newClient allows tests to point at a stub server.
	newClient func(token, userIP string) *Client
}

// NewResolver creates the Real-Debrid backend.
func NewResolver() *Resolver {
	return &Resolver{
		pollInterval: 5 * time.Second,
		newClient:    NewClient,
	}
}

// Service implements provider.Resolver.
func (r *Resolver) Service() string { return "realdebrid" }

// Resolve drives the Real-Debrid flow: find or add the torrent, start the
// download if needed, wait for completion and unrestrict the chosen file.
func (r *Resolver) Resolve(ctx context.Context, req provider.Request) (string, error) {
	client := r.newClient(req.User.StreamingProvider.Token, req.ClientIP)

	info, err := client.FindTorrent(ctx, req.InfoHash)
	if err != nil {
		return "", fmt.Errorf("listing torrents: %w", err)
	}

	if info == nil {
		active, err := client.Active(ctx)
		if err != nil {
			return "", fmt.Errorf("checking active slots: %w", err)
		}
		if active.Limit > 0 && active.Nb >= active.Limit {
			return "", provider.NewFailure("Torrent limit reached. Please try again later.", provider.FallbackTorrentLimit)
		}
		for _, h := range active.List {
			if strings.EqualFold(h, req.InfoHash) {
				return "", provider.NewFailure("Torrent is already being downloaded.", provider.FallbackAlreadyQueued)
			}
		}

		torrentID, err := client.AddMagnet(ctx, req.MagnetLink)
		if err != nil {
			return "", fmt.Errorf("adding magnet: %w", err)
		}
		if torrentID == "" {
			return "", provider.NewFailure("Failed to add magnet link to Real-Debrid.", provider.FallbackTransferError)
		}
		added, err := client.Info(ctx, torrentID)
		if err != nil {
			return "", fmt.Errorf("fetching torrent info: %w", err)
		}
		info = &added
	}

	switch info.Status {
	case StatusMagnetError, StatusError, StatusVirus, StatusDead:
		_ = client.Delete(ctx, info.ID)
		return "", provider.NewFailure(
			fmt.Sprintf("Torrent cannot be downloaded due to status: %s", info.Status),
			provider.FallbackTransferError,
		)
	case StatusQueued, StatusDownloading, StatusDownloaded:
		// Already started, fall through to the completion wait.
	default:
		// magnet_conversion, waiting_files_selection, compressing, uploading
		if _, err := client.WaitForStatus(ctx, info.ID, StatusWaitingFilesSelection, req.Attempt, r.pollInterval); err != nil {
			return "", fmt.Errorf("waiting for file selection: %w", err)
		}
		if err := client.SelectAllFiles(ctx, info.ID); err != nil {
			return "", fmt.Errorf("starting download: %w", err)
		}
	}

	done, err := client.WaitForStatus(ctx, info.ID, StatusDownloaded, req.Attempt, r.pollInterval)
	if err != nil {
		return "", provider.NewFailure("Torrent is not downloaded yet.", provider.FallbackAlreadyQueued)
	}

	link, ok := pickLink(done, req.Filename, req.FileIndex)
	if !ok {
		return "", provider.NewFailure("No matching file available for this torrent.", provider.FallbackNoMatchingFile)
	}

	download, err := client.Unrestrict(ctx, link)
	if err != nil {
		return "", fmt.Errorf("unrestricting link: %w", err)
	}
	return download, nil
}

// pickLink chooses the hoster link for the requested file: an explicit valid
// file index wins, then a filename match among selected files, then the
// largest selected file.
func pickLink(info TorrentInfo, filename string, fileIndex int) (string, bool) {
	if len(info.Links) == 0 {
		return "", false
	}
	if fileIndex >= 0 && fileIndex < len(info.Links) {
		return info.Links[fileIndex], true
	}

	selected := make([]TorrentFile, 0, len(info.Files))
	for _, f := range info.Files {
		if f.Selected == 1 {
			selected = append(selected, f)
		}
	}
	if len(selected) == 0 {
		return "", false
	}

	if filename != "" {
		for i, f := range selected {
			if f.Path == "/"+filename && i < len(info.Links) {
				return info.Links[i], true
			}
		}
	}

	largest := 0
	for i, f := range selected {
		if f.Bytes > selected[largest].Bytes {
			largest = i
		}
	}
	if largest >= len(info.Links) {
		return "", false
	}
	return info.Links[largest], true
}

// PurgeWatchlist deletes every torrent saved in the account.
func (r *Resolver) PurgeWatchlist(ctx context.Context, user session.UserConfig) error {
	client := r.newClient(user.StreamingProvider.Token, "")
	torrents, err := client.Torrents(ctx)
	if err != nil {
		return fmt.Errorf("listing torrents: %w", err)
	}
	for _, tor := range torrents {
		if err := client.Delete(ctx, tor.ID); err != nil {
			return fmt.Errorf("deleting torrent %s: %w", tor.ID, err)
		}
	}
	return nil
}
