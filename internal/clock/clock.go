// Package clock provides the monotonic tick counter BC uses to stamp
// last_used timestamps (spec.md §6: "a monotonic ticks counter ... read
// under its own lock. Monotonicity and coarse granularity are sufficient;
// ties are broken by scan order.").
//
// There is deliberately no background goroutine advancing ticks: in the
// reference kernel ticks advance on timer interrupts, a source of
// nondeterminism this port has no reason to reproduce. Callers (or tests)
// advance time explicitly with Tick.
//
// © 2025 kcore authors. MIT License.
package clock

import "sync/atomic"

// Ticks is a monotonic counter. The zero value starts at tick 0.
type Ticks struct {
	v atomic.Uint64
}

// New constructs a fresh tick counter starting at 0.
func New() *Ticks { return &Ticks{} }

// Now returns the current tick value.
func (t *Ticks) Now() uint64 { return t.v.Load() }

// Tick advances the counter by one and returns the new value.
func (t *Ticks) Tick() uint64 { return t.v.Add(1) }
