package bc

// cache.go implements a three-phase buffer acquisition algorithm: a
// fast-path scan of the key's bucket under that bucket's spinlock for a hit,
// a serialized re-check behind a single eviction gate, and a global LRU
// victim search when eviction is needed. last_used ordering comes from an
// internal/clock.Ticks owned by the Cache and advanced by Release, so it
// stays deterministic under test instead of depending on wall-clock time.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/kcore/internal/clock"
	"github.com/Voskan/kcore/internal/kfatal"
	"github.com/Voskan/kcore/internal/spinlock"
)

var errNoVictim = errors.New("bc: no unreferenced buffer available for eviction")

// Cache is a fixed pool of Buffers addressed by (device, block) identity,
// shared across callers with hash-bucket sharding and a single global
// eviction gate.
type Cache struct {
	blockSize int

	buffers []*Buffer
	buckets []*bucket

	evictionGate *spinlock.Spinlock
	ticks        *clock.Ticks

	driver  BlockDevice
	logger  *zap.Logger
	metrics metricsSink
}

// New constructs a Cache with nBuffers buffers distributed across nBuckets
// hash buckets, all initially unclaimed and chained into bucket 0 so every
// buffer starts out reachable before any block is ever requested.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	c := &Cache{
		blockSize:    cfg.blockSize,
		evictionGate: spinlock.New("bc-eviction-gate"),
		ticks:        clock.New(),
		driver:       cfg.driver,
		logger:       cfg.logger,
		metrics:      newMetricsSink(cfg.registry),
	}

	c.buckets = make([]*bucket, cfg.nBuckets)
	for i := range c.buckets {
		c.buckets[i] = newBucket(i)
	}

	c.buffers = make([]*Buffer, cfg.nBuffers)
	zero := c.buckets[0]
	for i := range c.buffers {
		c.buffers[i] = newBuffer(fmt.Sprintf("bc-buffer-%d", i), cfg.blockSize)
		c.buffers[i].next = zero.head
		zero.head = i
	}

	c.logger.Info("bc: initialized",
		zap.Int("buffers", cfg.nBuffers), zap.Int("buckets", cfg.nBuckets), zap.Int("block_size", cfg.blockSize))
	return c, nil
}

// NumBuffers returns the size of the fixed buffer pool.
func (c *Cache) NumBuffers() int { return len(c.buffers) }

// Handle is a live reference to an acquired Buffer. The caller holds the
// buffer's user-lock for as long as the Handle is valid; it must be passed
// to Release exactly once and not used afterward.
type Handle struct {
	c     *Cache
	idx   int
	token uint64
}

// Buffer returns the underlying Buffer this handle refers to.
func (h *Handle) Buffer() *Buffer { return h.c.buffers[h.idx] }

func (c *Cache) checkHandle(h *Handle) error {
	if h == nil || h.c != c {
		return errors.New("bc: invalid handle")
	}
	if h.token == 0 {
		err := errors.New("bc: handle already released")
		kfatal.Trigger("bc:use-after-release", err.Error())
		return err
	}
	return nil
}

func (c *Cache) scanLocked(bk *bucket, dev uint32, blk uint64) (int, bool) {
	for idx := bk.head; idx != noIndex; idx = c.buffers[idx].next {
		b := c.buffers[idx]
		if b.Device == dev && b.Block == blk && (b.refcount > 0 || b.valid.Load()) {
			return idx, true
		}
	}
	return noIndex, false
}

func (c *Cache) unlinkLocked(bk *bucket, idx int) {
	if bk.head == idx {
		bk.head = c.buffers[idx].next
		return
	}
	prev := bk.head
	for prev != noIndex && c.buffers[prev].next != idx {
		prev = c.buffers[prev].next
	}
	if prev != noIndex {
		c.buffers[prev].next = c.buffers[idx].next
	}
}

func (c *Cache) pushFrontLocked(bk *bucket, idx int) {
	c.buffers[idx].next = bk.head
	bk.head = idx
}

// findVictimLocked walks every bucket in order, and within each, every
// buffer in its chain, tracking the globally
// oldest refcount-0 buffer seen so far. The bucket containing the current
// best candidate keeps its lock held across the scan (the "retained bucket
// lock" dance) so the winner cannot be reclaimed by another Acquire between
// being chosen and being unlinked; every other bucket's lock is released
// immediately after it fails to improve on the best candidate. A buffer
// replaces the candidate only with a strictly smaller last_used, so ties go
// to the buffer met first in bucket scan order.
//
// On success exactly one bucket lock — victimBucket's — remains held; the
// caller is responsible for releasing it. On failure no lock is held.
func (c *Cache) findVictimLocked() (victimIdx, victimBucket int, err error) {
	victimIdx, victimBucket = noIndex, noIndex
	held := noIndex
	var bestLastUsed uint64

	for i, bk := range c.buckets {
		bk.lock.AcquireNoPreempt()

		improved := false
		for idx := bk.head; idx != noIndex; idx = c.buffers[idx].next {
			b := c.buffers[idx]
			if b.refcount == 0 && (victimIdx == noIndex || b.lastUsed < bestLastUsed) {
				victimIdx = idx
				bestLastUsed = b.lastUsed
				improved = true
			}
		}

		if improved {
			if held != noIndex {
				c.buckets[held].lock.ReleaseNoPreempt()
			}
			held = i
			victimBucket = i
		} else if held != i {
			bk.lock.ReleaseNoPreempt()
		}
	}

	if victimIdx == noIndex {
		return noIndex, noIndex, errNoVictim
	}
	return victimIdx, victimBucket, nil
}

// Acquire returns a Handle for (dev, blk), evicting the globally
// least-recently-used unreferenced buffer if it is not already cached. The
// returned buffer's data is not guaranteed valid; callers wanting disk
// contents should use Read instead.
func (c *Cache) Acquire(ctx context.Context, dev uint32, blk uint64) (*Handle, error) {
	key := hash(dev, blk, len(c.buckets))

	for {
		// Phase 1: fast path — is (dev, blk) already resident?
		bk := c.buckets[key]
		bk.lock.AcquireNoPreempt()
		if idx, ok := c.scanLocked(bk, dev, blk); ok {
			b := c.buffers[idx]
			b.refcount++
			bk.lock.ReleaseNoPreempt()
			c.metrics.incHit()

			tok, err := b.lock.Acquire(ctx)
			if err != nil {
				bk.lock.AcquireNoPreempt()
				b.refcount--
				bk.lock.ReleaseNoPreempt()
				return nil, err
			}
			return &Handle{c: c, idx: idx, token: tok}, nil
		}
		bk.lock.ReleaseNoPreempt()
		c.metrics.incMiss()

		// Phase 2: serialize against other evictions, re-check under the
		// gate in case a concurrent Acquire installed (dev, blk) first.
		c.evictionGate.AcquireNoPreempt()
		bk.lock.AcquireNoPreempt()
		if _, ok := c.scanLocked(bk, dev, blk); ok {
			bk.lock.ReleaseNoPreempt()
			c.evictionGate.ReleaseNoPreempt()
			continue
		}
		bk.lock.ReleaseNoPreempt()

		// Phase 3: find and claim the globally oldest free buffer.
		victimIdx, victimBucket, err := c.findVictimLocked()
		if err != nil {
			c.evictionGate.ReleaseNoPreempt()
			kfatal.Trigger("bc:no-victim", err.Error(), zap.Uint32("dev", dev), zap.Uint64("blk", blk))
			return nil, err
		}

		if victimBucket != key {
			vb := c.buckets[victimBucket]
			c.unlinkLocked(vb, victimIdx)
			vb.lock.ReleaseNoPreempt()

			bk.lock.AcquireNoPreempt()
			c.pushFrontLocked(bk, victimIdx)
			c.metrics.incRehome()
		}
		// else: victimBucket's lock (== bk's lock) is already held from
		// findVictimLocked and the buffer need not move.

		b := c.buffers[victimIdx]
		b.Device = dev
		b.Block = blk
		b.valid.Store(false)
		b.refcount = 1

		bk.lock.ReleaseNoPreempt()
		c.evictionGate.ReleaseNoPreempt()
		c.metrics.incEvict()

		tok, err := b.lock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return &Handle{c: c, idx: victimIdx, token: tok}, nil
	}
}

// Read returns a Handle for (dev, blk), issuing a driver read through the
// configured BlockDevice if the buffer is not already valid. The Handle is
// returned even when the driver read fails; callers must still Release it.
func (c *Cache) Read(ctx context.Context, dev uint32, blk uint64) (*Handle, error) {
	h, err := c.Acquire(ctx, dev, blk)
	if err != nil {
		return nil, err
	}
	b := c.buffers[h.idx]
	if !b.valid.Load() {
		start := time.Now()
		b.diskOwned.Store(true)
		ioErr := c.driver.ReadBlock(ctx, dev, blk, b.data)
		b.diskOwned.Store(false)
		c.metrics.observeDriverLatency(time.Since(start).Seconds())
		if ioErr != nil {
			return h, fmt.Errorf("bc: driver read: %w", ioErr)
		}
		b.valid.Store(true)
	}
	return h, nil
}

// Write issues a driver write of the handle's current buffer contents. The
// caller must hold the handle's user-lock (i.e. it must not yet have been
// released); violating this is a precondition failure routed through
// internal/kfatal.
func (c *Cache) Write(ctx context.Context, h *Handle) error {
	if err := c.checkHandle(h); err != nil {
		return err
	}
	b := c.buffers[h.idx]
	if !b.lock.HeldByCaller(h.token) {
		err := errors.New("bc: write of buffer whose user-lock is not held by the caller")
		kfatal.Trigger("bc:write-not-held", err.Error())
		return err
	}
	start := time.Now()
	b.diskOwned.Store(true)
	ioErr := c.driver.WriteBlock(ctx, b.Device, b.Block, b.data)
	b.diskOwned.Store(false)
	c.metrics.observeDriverLatency(time.Since(start).Seconds())
	if ioErr != nil {
		return fmt.Errorf("bc: driver write: %w", ioErr)
	}
	return nil
}

// Release drops the handle's user-lock and decrements the buffer's
// refcount, stamping last_used with the current tick if it reaches zero.
// The handle must not be used again afterward, except via Pin/Unpin which
// operate on buffer identity rather than the user-lock.
func (c *Cache) Release(h *Handle) error {
	if err := c.checkHandle(h); err != nil {
		return err
	}
	b := c.buffers[h.idx]
	if !b.lock.HeldByCaller(h.token) {
		err := errors.New("bc: release of buffer whose user-lock is not held by the caller")
		kfatal.Trigger("bc:release-not-held", err.Error())
		return err
	}

	tok := h.token
	b.lock.Release(tok)

	key := hash(b.Device, b.Block, len(c.buckets))
	bk := c.buckets[key]
	bk.lock.AcquireNoPreempt()
	b.refcount--
	if b.refcount == 0 {
		b.lastUsed = c.ticks.Tick()
	}
	bk.lock.ReleaseNoPreempt()

	h.token = 0
	return nil
}

// Pin increments the buffer's refcount without touching its user-lock,
// keeping it cached past a subsequent Release. Used by journal-style
// collaborators that need a dirty buffer to survive a release/reacquire
// cycle.
func (c *Cache) Pin(h *Handle) error {
	if h == nil || h.c != c {
		return errors.New("bc: invalid handle")
	}
	b := c.buffers[h.idx]
	key := hash(b.Device, b.Block, len(c.buckets))
	bk := c.buckets[key]
	bk.lock.AcquireNoPreempt()
	b.refcount++
	bk.lock.ReleaseNoPreempt()
	c.metrics.incPinned()
	return nil
}

// Unpin reverses a prior Pin.
func (c *Cache) Unpin(h *Handle) error {
	if h == nil || h.c != c {
		return errors.New("bc: invalid handle")
	}
	b := c.buffers[h.idx]
	key := hash(b.Device, b.Block, len(c.buckets))
	bk := c.buckets[key]
	bk.lock.AcquireNoPreempt()
	b.refcount--
	bk.lock.ReleaseNoPreempt()
	c.metrics.decPinned()
	return nil
}
