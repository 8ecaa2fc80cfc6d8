package bc

import "context"

// BlockDevice is the simulated backing store a Cache reads through and
// writes through. Per spec.md §7, driver I/O errors and ordering are
// outside the cache's own correctness contract — the cache only needs a
// completion signal, which here is simply the returned error.
type BlockDevice interface {
	ReadBlock(ctx context.Context, dev uint32, blk uint64, into []byte) error
	WriteBlock(ctx context.Context, dev uint32, blk uint64, data []byte) error
}
