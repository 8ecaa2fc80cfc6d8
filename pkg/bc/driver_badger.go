package bc

// driver_badger.go adapts the teacher's examples/disk_eject/main.go Badger
// wiring into a second BlockDevice implementation: each (dev, blk) pair
// becomes a key in an embedded Badger store, giving the cache a disk-backed
// driver with real serialization and durability semantics instead of a bare
// map.

import (
	"context"
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/semaphore"
)

// BadgerDevice persists blocks in an embedded Badger key-value store, keyed
// by a 12-byte big-endian encoding of (dev, blk).
type BadgerDevice struct {
	db  *badger.DB
	sem *semaphore.Weighted
}

// NewBadgerDevice opens (or creates) a Badger store at dir. queueDepth
// bounds concurrent ReadBlock/WriteBlock calls the same way MemDevice does.
func NewBadgerDevice(dir string, queueDepth int) (*BadgerDevice, error) {
	depth := queueDepth
	if depth <= 0 {
		depth = 64
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("bc: open badger store: %w", err)
	}
	return &BadgerDevice{db: db, sem: semaphore.NewWeighted(int64(depth))}, nil
}

// Close releases the underlying Badger store.
func (d *BadgerDevice) Close() error { return d.db.Close() }

func badgerKey(dev uint32, blk uint64) []byte {
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key[0:4], dev)
	binary.BigEndian.PutUint64(key[4:12], blk)
	return key
}

func (d *BadgerDevice) ReadBlock(ctx context.Context, dev uint32, blk uint64, into []byte) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(dev, blk))
		if err == badger.ErrKeyNotFound {
			for i := range into {
				into[i] = 0
			}
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n := copy(into, val)
			for i := n; i < len(into); i++ {
				into[i] = 0
			}
			return nil
		})
	})
	return err
}

func (d *BadgerDevice) WriteBlock(ctx context.Context, dev uint32, blk uint64, data []byte) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	buf := make([]byte, len(data))
	copy(buf, data)
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(dev, blk), buf)
	})
}
