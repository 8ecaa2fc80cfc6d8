package bc

// hash implements the exact bucket-assignment formula recovered from
// original_source/kernel/bio.c's HASH macro: ((dev*131)+(blk*137)) %
// NBUCKET. The two odd multipliers spread consecutive block numbers (the
// dominant access pattern for a single device) across buckets instead of
// clustering them, without needing a cryptographic hash.
func hash(dev uint32, blk uint64, nBuckets int) int {
	h := uint64(dev)*131 + blk*137
	return int(h % uint64(nBuckets))
}
