package bc

import (
	"strconv"

	"github.com/Voskan/kcore/internal/spinlock"
)

// bucket is one hash-bucket chain: a spinlock guarding a singly linked list
// of buffer indices (not pointers — the array backing Cache.buffers never
// moves, so an int index is as stable as a pointer and avoids exposing
// Buffer addresses across the package boundary).
type bucket struct {
	lock *spinlock.Spinlock
	head int
}

func newBucket(index int) *bucket {
	return &bucket{
		lock: spinlock.New("bc-bucket-" + strconv.Itoa(index)),
		head: noIndex,
	}
}
