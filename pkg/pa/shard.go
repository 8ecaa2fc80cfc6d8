package pa

import (
	"fmt"

	"github.com/Voskan/kcore/internal/spinlock"
)

// shard owns one hart's partition of the free frame pool: a freelist
// (encoded intrusively in the pool's backing RAM, see frame.go) and a fixed
// scratch buffer used as the landing pad for stolen frames. Both are
// protected by lock.
type shard struct {
	index int
	lock  *spinlock.Spinlock

	free  uintptr // ram-relative offset of the freelist head, or noFrame
	count int     // number of frames currently on this shard's freelist

	// scratch is written only while this hart's own stealGroup entry runs
	// (see pool.go's ensureStocked) — at most one goroutine writes it at a
	// time by construction, so no additional lock is needed for the writes
	// themselves; the splice that follows re-takes lock as normal.
	scratch []Frame
}

func newShard(index, stealBatch int) *shard {
	return &shard{
		index:   index,
		lock:    spinlock.New(fmt.Sprintf("pa-shard-%d", index)),
		free:    noFrame,
		scratch: make([]Frame, stealBatch),
	}
}
