// SPDX-License-Identifier: MIT

// Package provider defines the capability surface of the interchangeable
// streaming backends and the registry that dispatches to them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamvault/streamgate/internal/session"
)

// Request carries everything a backend needs to turn a torrent reference into
// a directly playable URL.
type Request struct {
	InfoHash   string
	MagnetLink string
	User       session.UserConfig
	Filename   string // target file inside the torrent, may be empty
	FileIndex  int    // -1 when unknown
	Attempt    int    // fixed attempt counter passed by the coordinator
	Episode    int    // 0 when not an episode request
	ClientIP   string // some backends bind downloads to the requester's IP
}

// Resolver turns a Request into a playable URL. Implementations are free to
// block; the coordinator bounds them only by the lock lease.
type Resolver interface {
	// Service returns the identifier users configure to select this backend.
	Service() string
	Resolve(ctx context.Context, req Request) (string, error)
}

// WatchlistPurger is the optional bulk-cleanup capability. Backends without it
// are reported as unsupported for the purge operation.
type WatchlistPurger interface {
	PurgeWatchlist(ctx context.Context, user session.UserConfig) error
}

// Well-known fallback video identifiers. Each maps to a static video served
// under /static/exceptions/.
const (
	FallbackAPIError         = "api_error.mp4"
	FallbackTransferError    = "transfer_error.mp4"
	FallbackTorrentLimit     = "torrent_limit.mp4"
	FallbackNoMatchingFile   = "no_matching_file.mp4"
	FallbackAlreadyQueued    = "torrent_not_downloaded.mp4"
	FallbackWatchlistDeleted = "watchlist_deleted.mp4"
)

// Failure is a classified backend error: it carries a user-facing message and
// the fallback video shown instead of a playable stream. Anything else coming
// out of a resolver is unclassified.
type Failure struct {
	Message       string
	FallbackVideo string
}

func (f *Failure) Error() string {
	return f.Message
}

// NewFailure builds a classified failure.
func NewFailure(message, fallbackVideo string) *Failure {
	return &Failure{Message: message, FallbackVideo: fallbackVideo}
}

// AsFailure unwraps err into a classified Failure if it is one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Registry maps service identifiers to resolvers. It is populated once at
// startup; adding a backend is a registration, not a new branch.
type Registry struct {
	resolvers      map[string]Resolver
	defaultService string
}

// NewRegistry creates a registry whose unknown/empty lookups fall back to
// defaultService.
func NewRegistry(defaultService string) *Registry {
	return &Registry{
		resolvers:      make(map[string]Resolver),
		defaultService: defaultService,
	}
}

// Register adds a resolver under its service identifier.
func (r *Registry) Register(res Resolver) {
	r.resolvers[res.Service()] = res
}

// Resolver returns the backend for service, falling back to the default
// service for unknown or empty identifiers.
func (r *Registry) Resolver(service string) (Resolver, error) {
	if res, ok := r.resolvers[service]; ok {
		return res, nil
	}
	if res, ok := r.resolvers[r.defaultService]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("provider: no resolver for %q and no default registered", service)
}

// Purger returns the bulk-cleanup capability for service, if the registered
// backend supports it. Unknown services do not fall back to the default here:
// purging someone's default account on a typo would be destructive.
func (r *Registry) Purger(service string) (WatchlistPurger, bool) {
	res, ok := r.resolvers[service]
	if !ok {
		return nil, false
	}
	p, ok := res.(WatchlistPurger)
	return p, ok
}

// Services lists the registered service identifiers.
func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		out = append(out, name)
	}
	return out
}
