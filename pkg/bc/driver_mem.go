package bc

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// MemDevice is an in-memory BlockDevice: a map keyed by (dev, blk) guarded
// by a single mutex, with a semaphore bounding concurrent in-flight
// operations the way a real block layer bounds outstanding requests per
// queue depth. It is the default driver (spec.md's Non-goals exclude real
// persistent storage) and the one used by the package's own tests.
type MemDevice struct {
	blockSize int
	sem       *semaphore.Weighted

	mu   sync.Mutex
	data map[memKey][]byte
}

type memKey struct {
	dev uint32
	blk uint64
}

// NewMemDevice constructs a MemDevice. queueDepth bounds concurrent
// ReadBlock/WriteBlock calls; 0 or negative falls back to a default of 64.
func NewMemDevice(blockSize int, queueDepth int) *MemDevice {
	depth := queueDepth
	if depth <= 0 {
		depth = 64
	}
	return &MemDevice{
		blockSize: blockSize,
		sem:       semaphore.NewWeighted(int64(depth)),
		data:      make(map[memKey][]byte),
	}
}

func (d *MemDevice) ReadBlock(ctx context.Context, dev uint32, blk uint64, into []byte) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	if stored, ok := d.data[memKey{dev, blk}]; ok {
		copy(into, stored)
		for i := len(stored); i < len(into); i++ {
			into[i] = 0
		}
		return nil
	}
	for i := range into {
		into[i] = 0
	}
	return nil
}

func (d *MemDevice) WriteBlock(ctx context.Context, dev uint32, blk uint64, data []byte) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	buf := make([]byte, len(data))
	copy(buf, data)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[memKey{dev, blk}] = buf
	return nil
}
