// Package kfatal centralises the kernel's "this should never happen" sink.
//
// The core never retries an externally observable operation on its own: a
// call either succeeds, returns a null/absent result, or the invariant it
// depends on has already been broken and the only correct move is to stop.
// kfatal is where that stop happens, with a structured log line attached so
// postmortems (and tests) can see exactly which invariant failed.
//
// © 2025 kcore authors. MIT License.
package kfatal

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
	panicFn = func(msg string) { panic(msg) }
)

// SetLogger plugs a logger used for the record emitted just before a fatal
// panic. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// SetPanicFunc overrides what happens after the fatal record is logged.
// Tests use this to capture the triggering invariant name instead of
// crashing the test binary. Passing nil restores the real panic.
func SetPanicFunc(fn func(msg string)) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		fn = func(msg string) { panic(msg) }
	}
	panicFn = fn
}

// Trigger logs the violated invariant and then calls the active panic
// function (real panic by default). kind is a short stable identifier
// (e.g. "pa:double-free", "bc:no-victim") so tests can match on it.
func Trigger(kind, msg string, fields ...zap.Field) {
	mu.RLock()
	l, fn := logger, panicFn
	mu.RUnlock()

	l.Error("kernel fatal", append([]zap.Field{zap.String("kind", kind), zap.String("detail", msg)}, fields...)...)
	fn(kind + ": " + msg)
}
