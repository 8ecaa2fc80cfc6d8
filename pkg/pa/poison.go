package pa

// Poison bytes distinguish "freed, never reallocated" memory from
// "allocated, not yet written" memory in a debug dump — free fills every
// byte of a frame with freePoison, alloc re-fills it with allocPoison, so the
// two states stay visually distinguishable and tests can assert the
// alloc-time value specifically.
const (
	freePoison  byte = 0x01
	allocPoison byte = 0x05
)
