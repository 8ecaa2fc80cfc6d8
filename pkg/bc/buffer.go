// Package bc implements the buffer cache: a fixed pool of block buffers
// mapping (device, block number) to cached disk contents, with LRU eviction
// across hash buckets and per-buffer sleep-lock exclusion for callers.
//
// © 2025 kcore authors. MIT License.
package bc

import (
	"sync/atomic"

	"github.com/Voskan/kcore/internal/sleeplock"
)

// noIndex is the sentinel used for "no next buffer" / "empty bucket".
const noIndex = -1

// Buffer is one cache-resident (or not-yet-claimed) block-sized slot. All
// buffers are allocated once, statically, at Cache construction and are
// never freed — they only change identity via eviction.
type Buffer struct {
	// Device/Block identify the cached block. Meaningful only while
	// refcount > 0 or valid is true.
	Device uint32
	Block  uint64

	valid     atomic.Bool
	diskOwned atomic.Bool

	// refcount and lastUsed are protected by the lock of the bucket the
	// buffer currently resides in. next is protected the same way.
	refcount int32
	lastUsed uint64
	next     int

	lock *sleeplock.Lock
	data []byte
}

func newBuffer(name string, blockSize int) *Buffer {
	return &Buffer{
		next: noIndex,
		lock: sleeplock.New(name),
		data: make([]byte, blockSize),
	}
}

// Data returns the buffer's block-sized contents. Callers must hold the
// buffer's user-lock (i.e. possess a live Handle for it) before reading or
// writing through the returned slice.
func (b *Buffer) Data() []byte { return b.data }

// Valid reports whether the buffer's contents currently reflect disk data.
func (b *Buffer) Valid() bool { return b.valid.Load() }

// DiskOwned reports whether a BlockDevice currently has an in-flight I/O
// against this buffer. No cache algorithm branches on this flag; Cache.Read
// and Cache.Write toggle it purely for observability around the driver call
// (the BlockDevice interface takes raw bytes, not a *Buffer, so the cache —
// not the driver — is what flips it).
func (b *Buffer) DiskOwned() bool { return b.diskOwned.Load() }
