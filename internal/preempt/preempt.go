// Package preempt models the reference kernel's preemption-disable guard.
//
// xv6's kalloc.c brackets every shard-lock critical section with
// push_off()/pop_off() so that current_hart() stays stable for the duration:
// a hart migration mid-critical-section would otherwise violate I-PA-1's
// accounting. Go has no user-space equivalent — goroutines are preemptible
// at any point and a "hart" has no stable identity a library can read back.
//
// pa.Pool sidesteps the problem instead of faking it: callers pass their
// hart identity explicitly to Alloc/Free rather than asking the runtime to
// discover it (see SPEC_FULL.md §E.4). Guard exists purely so the call shape
// inside pkg/pa mirrors the source's push_off/pop_off bracketing for readers
// porting from the C; Disable/Restore do nothing.
package preempt

// Guard is returned by Disable and undone by calling Restore. It carries no
// state; the zero value is valid.
type Guard struct{}

// Disable is a documented no-op. See package doc.
func Disable() Guard { return Guard{} }

// Restore is a documented no-op. See package doc.
func (Guard) Restore() {}
