// SPDX-License-Identifier: MIT

// Package worker hosts the restart supervisor. Long-running instances
// accumulate provider client state and open connections; instead of reloading
// in place, the daemon drains and exits after a configured number of completed
// resolutions and lets the process manager start a fresh instance.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/streamvault/streamgate/internal/log"
)

// Supervisor counts completed resolutions against a fixed capacity and
// requests exactly one restart when the capacity is exhausted.
type Supervisor struct {
	remaining atomic.Int64
	limited   bool
	once      sync.Once
	restart   chan struct{}
}

// NewSupervisor creates a supervisor with the given capacity. A capacity of
// zero or less disables restart requests entirely.
func NewSupervisor(capacity int64) *Supervisor {
	s := &Supervisor{
		limited: capacity > 0,
		restart: make(chan struct{}),
	}
	s.remaining.Store(capacity)
	return s
}

// NoteCompletion records one completed resolution. The call that consumes the
// last unit of capacity triggers the restart request; later calls are no-ops.
func (s *Supervisor) NoteCompletion() {
	if !s.limited {
		return
	}
	if s.remaining.Add(-1) == 0 {
		s.once.Do(func() {
			logger := log.WithComponent("supervisor")
			logger.Info().Msg("resolution capacity exhausted, requesting restart")
			close(s.restart)
		})
	}
}

// Restart returns a channel that is closed when a restart has been requested.
func (s *Supervisor) Restart() <-chan struct{} {
	return s.restart
}

// Remaining reports the capacity left. Negative values mean completions kept
// arriving after the restart request, which is expected during the drain.
func (s *Supervisor) Remaining() int64 {
	return s.remaining.Load()
}
