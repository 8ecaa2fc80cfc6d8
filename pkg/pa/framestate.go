package pa

import "sync/atomic"

// frameState is a lock-free bitset tracking, per frame index, whether a
// frame is currently free or held by a caller. It exists only to catch a
// double free: freeing a frame that is not currently allocated. Allocation
// itself never reads this bitset for decisions — the shard freelists are the
// source of truth for which frames are available — so markAllocated/
// tryMarkFree only need to agree with the freelist, never race ahead of it.
type frameState struct {
	words []atomic.Uint64
}

func newFrameState(n int) *frameState {
	return &frameState{words: make([]atomic.Uint64, (n+63)/64)}
}

func (fs *frameState) markAllocated(idx int) {
	w, bit := idx/64, uint(idx%64)
	for {
		old := fs.words[w].Load()
		next := old | (uint64(1) << bit)
		if fs.words[w].CompareAndSwap(old, next) {
			return
		}
	}
}

// tryMarkFree atomically transitions idx from allocated to free, returning
// false (without mutating anything) if the bit was already clear — i.e. the
// frame was already free, a double free.
func (fs *frameState) tryMarkFree(idx int) bool {
	w, bit := idx/64, uint(idx%64)
	mask := uint64(1) << bit
	for {
		old := fs.words[w].Load()
		if old&mask == 0 {
			return false
		}
		next := old &^ mask
		if fs.words[w].CompareAndSwap(old, next) {
			return true
		}
	}
}
