// SPDX-License-Identifier: MIT

// Package lock provides a TTL-bounded mutual-exclusion lease on the shared
// Redis store. Acquisition never blocks: a held lease is reported immediately
// so callers can shed load instead of queueing. The TTL is the only recovery
// path from a crashed holder.
package lock

import (
	"context"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if the caller still holds it, so
// releasing an expired or foreign lease never destroys another holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a held lock. Release it when the protected work is done; otherwise
// it self-expires after its TTL.
type Lease struct {
	rdb    *redis.Client
	name   string
	holder string
}

// Manager acquires leases on the shared store.
type Manager struct {
	rdb *redis.Client
}

// NewManager returns a lease manager backed by rdb.
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Acquire attempts a single set-if-absent with expiry. It returns the lease
// and true when the caller now holds the lock, (nil, false) when another
// holder has it, and an error only when the store itself failed. ttl is both
// the lease lifetime and the contention horizon; there is no retry loop.
func (m *Manager) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, bool, error) {
	holder := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, name, holder, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquire %q: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{rdb: m.rdb, name: name, holder: holder}, true, nil
}

// Release drops the lease if it is still held by this caller. Releasing an
// already-expired lease is not an error.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.name}, l.holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock: release %q: %w", l.name, err)
	}
	return nil
}

// Name returns the lock key this lease holds.
func (l *Lease) Name() string {
	return l.name
}
