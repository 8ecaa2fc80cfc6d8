package pa

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Voskan/kcore/internal/kfatal"
	"github.com/Voskan/kcore/internal/preempt"
	"github.com/Voskan/kcore/internal/unsafehelpers"
)

// Pool owns the entire managed RAM range, split into one shard per hart.
// Construct with New, then call Init exactly once before any concurrent
// Alloc/Free.
type Pool struct {
	pageSize uintptr

	baseAddr uintptr
	rangeEnd uintptr
	ram      []byte
	state    *frameState

	shards     []*shard
	stealGroup singleflight.Group

	logger  *zap.Logger
	metrics metricsSink
}

// New constructs a Pool with hartCount shards. The pool owns no memory until
// Init is called.
func New(opts ...Option) (*Pool, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	p := &Pool{
		pageSize: cfg.pageSize,
		logger:   cfg.logger,
		metrics:  newMetricsSink(cfg.hartCount, cfg.registry),
	}
	p.shards = make([]*shard, cfg.hartCount)
	for i := range p.shards {
		p.shards[i] = newShard(i, cfg.stealBatch)
	}
	return p, nil
}

// HartCount returns the number of shards the pool was constructed with.
func (p *Pool) HartCount() int { return len(p.shards) }

// Init walks [base, end), page-aligning base upward, and frees every whole
// page it contains. Must be called exactly once, before any concurrent
// Alloc/Free.
func (p *Pool) Init(base, end uintptr) error {
	if p.ram != nil {
		return errors.New("pa: Init called twice")
	}
	if base == 0 {
		return errors.New("pa: base address must be non-zero")
	}
	base = unsafehelpers.AlignUp(base, p.pageSize)
	if end <= base {
		return fmt.Errorf("pa: empty or invalid range [%#x, %#x)", base, end)
	}

	p.baseAddr = base
	p.rangeEnd = end
	p.ram = make([]byte, end-base)

	numFrames := int((end - base) / p.pageSize)
	p.state = newFrameState(numFrames)
	for i := 0; i < numFrames; i++ {
		p.state.markAllocated(i)
	}

	for addr := base; addr+p.pageSize <= end; addr += p.pageSize {
		if err := p.Free(0, Frame(addr)); err != nil {
			return err
		}
	}

	p.logger.Info("pa: initialized",
		zap.Uintptr("base", base), zap.Uintptr("end", end),
		zap.Int("frames", numFrames), zap.Int("shards", len(p.shards)))
	return nil
}

func (p *Pool) offset(f Frame) uintptr { return uintptr(f) - p.baseAddr }
func (p *Pool) addrAt(off uintptr) Frame { return Frame(off + p.baseAddr) }
func (p *Pool) frameIndex(f Frame) int  { return int(p.offset(f) / p.pageSize) }

func (p *Pool) validateFrame(f Frame) error {
	addr := uintptr(f)
	if addr%p.pageSize != 0 {
		return fmt.Errorf("pa: frame %#x is not page-aligned", addr)
	}
	if addr < p.baseAddr || addr >= p.rangeEnd {
		return fmt.Errorf("pa: frame %#x is outside the managed range [%#x, %#x)", addr, p.baseAddr, p.rangeEnd)
	}
	return nil
}

func (p *Pool) poisonFrame(f Frame, b byte) {
	off := p.offset(f)
	page := p.ram[off : off+p.pageSize]
	for i := range page {
		page[i] = b
	}
}

// pushLocked pushes f onto shard s's freelist head. Caller holds s.lock.
func (p *Pool) pushLocked(s *shard, f Frame) {
	off := p.offset(f)
	unsafehelpers.WriteFrameLink(p.ram, off, s.free)
	s.free = off
	s.count++
}

// popLocked pops the freelist head off shard s, if any. Caller holds s.lock.
func (p *Pool) popLocked(s *shard) (Frame, bool) {
	if s.free == noFrame {
		return 0, false
	}
	off := s.free
	s.free = unsafehelpers.ReadFrameLink(p.ram, off)
	s.count--
	return p.addrAt(off), true
}

// Free releases a frame back to shard hart's freelist. Preconditions
// (page-aligned, in-range, not already free) are fatal via internal/kfatal
// on violation.
func (p *Pool) Free(hart int, f Frame) error {
	if hart < 0 || hart >= len(p.shards) {
		return fmt.Errorf("pa: invalid hart %d", hart)
	}
	if err := p.validateFrame(f); err != nil {
		kfatal.Trigger("pa:invalid-free", err.Error(), zap.Uintptr("addr", uintptr(f)))
		return err
	}
	idx := p.frameIndex(f)
	if !p.state.tryMarkFree(idx) {
		err := fmt.Errorf("pa: double free of frame %#x", f)
		kfatal.Trigger("pa:double-free", err.Error(), zap.Uintptr("addr", uintptr(f)))
		return err
	}

	p.poisonFrame(f, freePoison)

	g := preempt.Disable()
	s := p.shards[hart]
	s.lock.AcquireNoPreempt()
	p.pushLocked(s, f)
	count := s.count
	s.lock.ReleaseNoPreempt()
	g.Restore()

	p.metrics.incFree(hart)
	p.metrics.setFreeFrames(hart, count)
	return nil
}

// Alloc returns a frame owned by the caller, poisoned with allocPoison, or
// (0, false) if RAM is exhausted. hart identifies the calling hart
// explicitly, since Go has no notion of the current CPU a goroutine is
// running on.
func (p *Pool) Alloc(hart int) (Frame, bool) {
	g := preempt.Disable()
	defer g.Restore()

	if hart < 0 || hart >= len(p.shards) {
		return 0, false
	}
	s := p.shards[hart]

	s.lock.AcquireNoPreempt()
	f, ok := p.popLocked(s)
	count := s.count
	s.lock.ReleaseNoPreempt()

	if !ok {
		if p.ensureStocked(hart) == 0 {
			p.metrics.incAllocFailed()
			return 0, false
		}
		s.lock.AcquireNoPreempt()
		f, ok = p.popLocked(s)
		count = s.count
		s.lock.ReleaseNoPreempt()
		if !ok {
			p.metrics.incAllocFailed()
			return 0, false
		}
	}

	p.state.markAllocated(p.frameIndex(f))
	p.poisonFrame(f, allocPoison)
	p.metrics.incAlloc(hart)
	p.metrics.setFreeFrames(hart, count)
	return f, true
}

// ensureStocked makes sure shard hart's freelist has at least one frame,
// stealing up to stealBatch from other shards if necessary, and returns how
// many frames were added (0 if none were available anywhere).
//
// Concurrent Alloc(hart) calls for the *same* hart are deduplicated through
// stealGroup: more than one goroutine can present the same hart id
// concurrently, so stealGroup enforces a single writer into that hart's
// scratch buffer at a time, without requiring callers to hold shard hart's
// own lock across the cross-shard scan.
func (p *Pool) ensureStocked(hart int) int {
	v, _, _ := p.stealGroup.Do(strconv.Itoa(hart), func() (any, error) {
		n := p.stealOnce(hart)
		if n == 0 {
			return 0, nil
		}
		s := p.shards[hart]
		s.lock.AcquireNoPreempt()
		for i := 0; i < n; i++ {
			p.pushLocked(s, s.scratch[i])
		}
		count := s.count
		s.lock.ReleaseNoPreempt()
		p.metrics.setFreeFrames(hart, count)
		return n, nil
	})
	return v.(int)
}

// stealOnce visits shards in fixed index order, never the caller's own,
// holding at most one victim lock at a time, filling shard hart's scratch
// buffer until it is full or every other shard has been drained.
func (p *Pool) stealOnce(hart int) int {
	h := p.shards[hart]
	n := 0
	for _, v := range p.shards {
		if v.index == hart {
			continue
		}
		if n >= len(h.scratch) {
			break
		}
		v.lock.AcquireNoPreempt()
		for v.free != noFrame && n < len(h.scratch) {
			f, _ := p.popLocked(v)
			h.scratch[n] = f
			n++
		}
		victimCount := v.count
		v.lock.ReleaseNoPreempt()
		p.metrics.setFreeFrames(v.index, victimCount)
	}
	if n > 0 {
		p.metrics.incSteal(hart)
		p.metrics.addStealFrames(hart, n)
		p.logger.Debug("pa: stole frames", zap.Int("hart", hart), zap.Int("count", n))
	}
	return n
}

// FreeFrames returns the current number of free frames in shard hart's
// freelist. Intended for tests and metrics/debug dumps, not the hot path.
func (p *Pool) FreeFrames(hart int) int {
	s := p.shards[hart]
	s.lock.AcquireNoPreempt()
	defer s.lock.ReleaseNoPreempt()

	n := 0
	for off := s.free; off != noFrame; off = unsafehelpers.ReadFrameLink(p.ram, off) {
		n++
	}
	return n
}
