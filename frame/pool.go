package frame

import (
	"fmt"
)

// Index identifies a Frame within a Pool's arena. NoFrame is the "none"
// value used throughout next-frame slots and pending records (spec.md §3).
type Index int32

// NoFrame is the sentinel for "no frame" (spec.md §3 next-frame slot: "frame
// index (or none)").
const NoFrame Index = -1

// class is one size class's free list and allocation counter (spec.md §3).
type class struct {
	layout    SizeClass
	freeList  []Index
	allocated uint64 // monotonic allocation counter
}

// Pool is a per-worker, size-classed free-list allocator of Frames
// (spec.md §4.1, component C1). It is not safe for concurrent use from
// multiple goroutines: each dispatch.Worker owns exactly one Pool, matching
// spec.md §5 "Frame storage is worker-local."
//
// Handles are 32-bit arena indices rather than pointers, per the design
// note in spec.md §9 on avoiding dangling-pointer hazards across
// reallocation: the arena (frames slice) may grow, but an Index remains
// valid across that growth.
type Pool struct {
	frames  []Frame
	classes map[[2]int]*class
	debug   bool // poison freshly allocated frames
}

// NewPool constructs an empty Pool. If debug is true, freshly allocated
// frames are poisoned (spec.md §4.1).
func NewPool(debug bool) *Pool {
	return &Pool{
		classes: make(map[[2]int]*class),
		debug:   debug,
	}
}

// classFor returns (creating if necessary) the class bookkeeping for sc.
func (p *Pool) classFor(sc SizeClass) *class {
	k := sc.Key()
	c, ok := p.classes[k]
	if !ok {
		c = &class{layout: sc}
		p.classes[k] = c
	}
	return c
}

// Alloc returns a zeroed Frame matching sc, with the magic sentinel
// written and FlagAllocated set (spec.md §4.1 alloc_to). It reuses a
// free-list entry when available, else grows the arena. Allocation never
// fails under normal memory conditions; exhaustion of the underlying Go
// heap is fatal and is left to panic through, per spec.md §7 "Resource
// exhaustion ... fatal".
func (p *Pool) Alloc(sc SizeClass) Index {
	c := p.classFor(sc)
	c.allocated++

	var idx Index
	if n := len(c.freeList); n > 0 {
		idx = c.freeList[n-1]
		c.freeList = c.freeList[:n-1]
	} else {
		idx = Index(len(p.frames))
		p.frames = append(p.frames, Frame{})
	}

	f := &p.frames[idx]
	f.reset(sc)
	if p.debug {
		f.poison()
	}
	f.Flags |= FlagAllocated
	return idx
}

// Free returns idx to its size class's free list. Per spec.md §4.1, this
// requires the frame to have no remaining references (no next-frame slot,
// pending record, or handoff element referencing it) — callers own that
// invariant; Free only asserts FlagAllocated was set.
func (p *Pool) Free(idx Index) error {
	if idx == NoFrame {
		return nil
	}
	f := p.Get(idx)
	if f.Flags&FlagAllocated == 0 {
		return fmt.Errorf("frame: free: index %d not allocated", idx)
	}
	if f.Flags&(FlagPending) != 0 {
		return fmt.Errorf("frame: free: index %d still pending", idx)
	}
	f.Flags = 0
	f.NVectors = 0
	c := p.classFor(f.Class)
	c.freeList = append(c.freeList, idx)
	return nil
}

// Get returns a pointer to the Frame at idx. Index NoFrame must never be
// passed; callers check against NoFrame first.
func (p *Pool) Get(idx Index) *Frame {
	return &p.frames[idx]
}

// FindMagic returns the trailing sentinel bytes for the frame at idx,
// matching find_magic's contract of computing the sentinel location from
// the frame's own size class (spec.md §4.1). Since frames here are Go
// values rather than a hand-laid-out arena of bytes, this returns the
// value rather than an address.
func (p *Pool) FindMagic(idx Index) [4]byte {
	return p.Get(idx).MagicBytes()
}

// AllocationCount returns the number of Alloc calls ever made for sc,
// surfaced via `show vlib frame-allocation` (spec.md §6).
func (p *Pool) AllocationCount(sc SizeClass) uint64 {
	if c, ok := p.classes[sc.Key()]; ok {
		return c.allocated
	}
	return 0
}

// FreeListLength returns the number of frames currently on sc's free list.
func (p *Pool) FreeListLength(sc SizeClass) int {
	if c, ok := p.classes[sc.Key()]; ok {
		return len(c.freeList)
	}
	return 0
}

// Len returns the total number of frames ever allocated into the arena
// (including ones currently on a free list).
func (p *Pool) Len() int { return len(p.frames) }
