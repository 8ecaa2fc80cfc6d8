// Package bench provides reproducible micro-benchmarks for kcore.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// We measure:
//   1. Alloc/Free        – single-hart allocator round trip
//   2. AllocParallel      – highly concurrent allocation across harts (steal contention)
//   3. AcquireHit         – buffer cache fast path (already-resident block)
//   4. AcquireMiss        – buffer cache eviction path (always-cold blocks)
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
//
// NOTE: Unit tests live alongside their packages; this file is only for
// performance.
//
// © 2025 kcore authors. MIT License.

package bench

import (
	"context"
	"math/rand"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/Voskan/kcore/pkg/bc"
	"github.com/Voskan/kcore/pkg/pa"
)

const (
	pages   = 1 << 16 // 64K pages ≈ 256MiB of simulated RAM at 4096-byte pages
	harts   = 8
	buffers = 256
	buckets = 127
)

func newBenchPool() (*pa.Pool, uintptr) {
	p, err := pa.New(pa.WithHartCount(harts), pa.WithStealBatch(64))
	if err != nil {
		panic(err)
	}
	base := uintptr(0x10000)
	if err := p.Init(base, base+pages*4096); err != nil {
		panic(err)
	}
	return p, base
}

func newBenchCache() *bc.Cache {
	c, err := bc.New(bc.WithBuffers(buffers), bc.WithBuckets(buckets), bc.WithBlockSize(4096))
	if err != nil {
		panic(err)
	}
	return c
}

func BenchmarkAllocFree(b *testing.B) {
	p, _ := newBenchPool()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, ok := p.Alloc(0)
		if !ok {
			b.Fatal("unexpected exhaustion")
		}
		if err := p.Free(0, f); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAllocParallel(b *testing.B) {
	p, _ := newBenchPool()
	b.ReportAllocs()
	b.ResetTimer()

	var hartCounter int32
	b.RunParallel(func(pb *testing.PB) {
		hart := int(atomic.AddInt32(&hartCounter, 1)-1) % harts
		for pb.Next() {
			f, ok := p.Alloc(hart)
			if !ok {
				continue
			}
			_ = p.Free(hart, f)
		}
	})
}

func BenchmarkAcquireHit(b *testing.B) {
	c := newBenchCache()
	ctx := context.Background()
	h, err := c.Acquire(ctx, 0, 0)
	if err != nil {
		b.Fatal(err)
	}
	c.Release(h)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := c.Acquire(ctx, 0, 0)
		if err != nil {
			b.Fatal(err)
		}
		c.Release(h)
	}
}

func BenchmarkAcquireMiss(b *testing.B) {
	c := newBenchCache()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := c.Acquire(ctx, 0, uint64(i))
		if err != nil {
			b.Fatal(err)
		}
		c.Release(h)
	}
}

func init() {
	rand.Seed(42)
	runtime.GOMAXPROCS(runtime.NumCPU())
}
