// SPDX-License-Identifier: MIT

// Package stream provides lookup of torrent stream metadata by info-hash.
package stream

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrNotFound is returned when no stream is known for an info-hash.
var ErrNotFound = errors.New("stream: not found")

// Episode is one episode file inside a series torrent.
type Episode struct {
	Season    int
	Episode   int
	Title     string
	Filename  string
	FileIndex int
	Size      int64
}

// Stream is the metadata record for one torrent.
type Stream struct {
	InfoHash     string
	TorrentName  string
	Filename     string // main video file for single-file torrents
	FileIndex    int
	Size         int64
	AnnounceList []string
	Episodes     []Episode
}

// GetEpisode returns the episode matching season/episode, or nil when the
// torrent has no such episode (or is not a series).
func (s *Stream) GetEpisode(season, episode int) *Episode {
	if season == 0 && episode == 0 {
		return nil
	}
	for i := range s.Episodes {
		e := &s.Episodes[i]
		if e.Season == season && e.Episode == episode {
			return e
		}
	}
	return nil
}

// MagnetLink builds a magnet URI from the info-hash and announce list.
func (s *Stream) MagnetLink() string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(s.InfoHash)
	if s.TorrentName != "" {
		b.WriteString("&dn=")
		b.WriteString(url.QueryEscape(s.TorrentName))
	}
	for _, tracker := range s.AnnounceList {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

// Store looks up stream metadata. The resolution coordinator depends on this
// interface only; the sqlite implementation below backs the daemon.
type Store interface {
	// GetByInfoHash returns the stream for infoHash or ErrNotFound.
	GetByInfoHash(ctx context.Context, infoHash string) (*Stream, error)
}
