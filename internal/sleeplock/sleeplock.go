// Package sleeplock implements a mutual-exclusion primitive that yields the
// calling goroutine while waiting, for BC's per-buffer user-lock (spec.md
// §6: "Sleep-lock: init(name), acquire (may yield), release, held_by_caller").
//
// It is built on a capacity-1 buffered channel used as a binary semaphore —
// receiving blocks (parks) the goroutine exactly the way xv6's acquiresleep
// parks the calling process, and sending never blocks because the channel
// never holds more than one token. A monotonically increasing generation
// token is handed back from Acquire so Release/HeldByCaller can verify
// ownership without needing a goroutine-local identity, which Go does not
// expose.
//
// © 2025 kcore authors. MIT License.
package sleeplock

import (
	"context"
	"sync"
	"sync/atomic"
)

var tokenCtr atomic.Uint64

// Lock is a per-resource sleep-lock. The zero value is not usable; construct
// with New.
type Lock struct {
	name string
	ch   chan struct{}

	mu    sync.Mutex
	owner uint64 // 0 == unlocked
}

// New constructs a named, initially-unlocked sleep-lock.
func New(name string) *Lock {
	l := &Lock{name: name, ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

// Name returns the diagnostic name passed to New.
func (l *Lock) Name() string { return l.name }

// Acquire blocks (parking the goroutine, never spinning) until the lock is
// free, then returns a token identifying this acquisition. ctx cancellation
// aborts the wait without taking the lock.
func (l *Lock) Acquire(ctx context.Context) (uint64, error) {
	select {
	case <-l.ch:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	tok := tokenCtr.Add(1)
	l.mu.Lock()
	l.owner = tok
	l.mu.Unlock()
	return tok, nil
}

// Release releases the lock. token must be the value returned by the
// matching Acquire; a mismatched or stale token causes a plain panic, not
// routed through internal/kfatal (callers check HeldByCaller first when the
// violation must go through kfatal instead — see pkg/bc/cache.go's Write and
// Release).
func (l *Lock) Release(token uint64) {
	l.mu.Lock()
	ok := token != 0 && token == l.owner
	if ok {
		l.owner = 0
	}
	l.mu.Unlock()
	if !ok {
		panic("sleeplock: release by non-owner")
	}
	l.ch <- struct{}{}
}

// HeldByCaller reports whether token is the current owner's token.
func (l *Lock) HeldByCaller(token uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return token != 0 && token == l.owner
}
