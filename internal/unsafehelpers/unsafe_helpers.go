// Package unsafehelpers centralises **all** unavoidable usage of the
// `unsafe` standard-library package so that the rest of kcore stays clean
// and easy to audit. Every helper documents its pre-/post-conditions.
//
// ⚠️  DISCLAIMER  These helpers deliberately break the Go memory-safety model.
// Use ONLY inside this repository; they are not part of the public API and
// may change without notice.
//
// All functions are go:linkname-free, cgo-free and pure Go.
//
// © 2025 kcore authors. MIT License.
package unsafehelpers

import "unsafe"

/* -------------------------------------------------------------------------
   1. Intrusive free-frame links (pkg/pa)

   spec.md §3.1 describes a free frame as self-describing: its first machine
   word stores the address of the next free frame. ReadFrameLink/
   WriteFrameLink are the single boundary where that reinterpretation
   happens; pkg/pa never touches unsafe directly.
   ------------------------------------------------------------------------- */

// WriteFrameLink stores next at the start of the frame occupying
// ram[addr : addr+8]. The caller guarantees addr+8 <= len(ram) and that the
// frame is at least 8-byte aligned (true for any page-sized, page-aligned
// frame).
func WriteFrameLink(ram []byte, addr uintptr, next uintptr) {
	p := (*uintptr)(unsafe.Pointer(&ram[addr]))
	*p = next
}

// ReadFrameLink reads back the value stored by WriteFrameLink.
func ReadFrameLink(ram []byte, addr uintptr) uintptr {
	p := (*uintptr)(unsafe.Pointer(&ram[addr]))
	return *p
}

/* -------------------------------------------------------------------------
   2. Alignment helpers
   ------------------------------------------------------------------------- */

// AlignUp rounds x up to the nearest multiple of align (which must be a
// power of two). Used to reproduce xv6's PGROUNDUP when walking the free
// RAM range during Pool.Init.
func AlignUp(x, align uintptr) uintptr {
	return (x + align - 1) &^ (align - 1)
}

// IsPowerOfTwo returns true if x is a power of two (exactly one bit set).
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && (x&(x-1)) == 0
}
