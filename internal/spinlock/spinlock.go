// Package spinlock implements a busy-wait mutual-exclusion primitive for
// short, bounded critical sections — the PA shard lock, the BC bucket locks
// and the BC eviction gate never sleep while held, so a spinning lock (as
// opposed to a parking sync.Mutex) matches the reference kernel's
// spinlock.c contract from spec.md §6.
//
// Acquire/Release additionally toggle a preemption guard (see
// internal/preempt); AcquireNoPreempt/ReleaseNoPreempt are the toggle-free
// variants spec.md §6 requires so that PA can manage the guard itself
// across a release-then-reacquire sequence (steal()).
//
// © 2025 kcore authors. MIT License.
package spinlock

import (
	"runtime"
	"sync/atomic"

	"github.com/Voskan/kcore/internal/preempt"
)

// Spinlock is a busy-wait lock. The zero value is not usable; construct with
// New.
type Spinlock struct {
	name   string
	locked atomic.Bool
}

// New constructs a named spinlock. The name is carried only for diagnostics
// (fatal messages, metrics labels), mirroring xv6's initlock(name).
func New(name string) *Spinlock {
	return &Spinlock{name: name}
}

// Name returns the diagnostic name passed to New.
func (s *Spinlock) Name() string { return s.name }

// AcquireNoPreempt spins until the lock is obtained. It does not touch the
// preemption guard; callers that need the guard use Acquire.
func (s *Spinlock) AcquireNoPreempt() {
	spins := 0
	for !s.locked.CompareAndSwap(false, true) {
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// ReleaseNoPreempt releases the lock without touching the preemption guard.
func (s *Spinlock) ReleaseNoPreempt() {
	s.locked.Store(false)
}

// Acquire disables preemption (see internal/preempt) and then spins until
// the lock is obtained. Pair with Release.
func (s *Spinlock) Acquire() preempt.Guard {
	g := preempt.Disable()
	s.AcquireNoPreempt()
	return g
}

// Release releases the lock and restores the preemption guard obtained from
// the matching Acquire.
func (s *Spinlock) Release(g preempt.Guard) {
	s.ReleaseNoPreempt()
	g.Restore()
}

// Held reports whether the lock is currently held by anyone. Useful only for
// diagnostics/tests — there is no notion of "held by me" for a spinlock.
func (s *Spinlock) Held() bool {
	return s.locked.Load()
}
