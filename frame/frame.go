// Package frame implements the frame pool (spec.md §4.1, component C1): a
// size-classed, cache-line-aligned allocator of fixed-capacity packet-index
// buffers ("frames"), pooled per worker and never failing under normal
// memory conditions.
//
// The pool design mirrors the teacher's sync.Pool-backed ChunkedIngress
// chunk recycling (go-utilpkg/eventloop/ingress.go): fixed-size arrays
// amortize allocation and give cache locality, and a free list (rather than
// letting the GC reclaim) keeps allocation off the hot path entirely.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Capacity is the maximum number of packet indices a single Frame holds
// (spec.md §3, "N = 256 typical"). It mirrors VLIB_FRAME_SIZE in the
// original source (src/vlib/buffer_node.h).
const Capacity = 256

// Magic is the sentinel value written past the last slot, used to detect
// a write overrunning the frame's capacity (spec.md §4.1, §8).
const Magic uint32 = 0xdead1000

// poisonByte is written into freshly allocated frame index storage on
// debug builds, matching spec.md §4.1 "freshly allocated frames are
// poisoned with a recognizable byte pattern".
const poisonByte = 0xfe

// Flag bits for Frame.Flags.
type Flag uint32

const (
	// FlagAllocated is set while a frame is owned by the pool's allocation
	// accounting; it is cleared only when the frame returns to its size
	// class's free list.
	FlagAllocated Flag = 1 << iota
	// FlagPending indicates the frame currently has exactly one
	// pending-frame record referencing it (spec.md §3 Pending-frame record
	// invariant).
	FlagPending
	// FlagTrace marks a frame for dispatch-pcap capture (spec.md §6).
	FlagTrace
	// FlagFreeAfterDispatch marks a frame to be returned to the pool once
	// dispatch of its pending record completes, rather than retained by
	// the owning next-frame slot.
	FlagFreeAfterDispatch
)

// SizeClass is the (scalar-size, vector-size) byte layout a Frame's packet
// index storage is shaped for (spec.md §3 "Size class").
type SizeClass struct {
	ScalarSize int // bytes of per-frame scalar argument area
	VectorSize int // bytes per packet-index element (commonly 4, for a u32 buffer index)
}

// Key returns a value suitable as a map key for this size class.
func (c SizeClass) Key() [2]int { return [2]int{c.ScalarSize, c.VectorSize} }

// Frame is a fixed-capacity container of up to Capacity packet indices,
// matching spec.md §3's Frame data model: a small header, the index slots,
// and a trailing magic sentinel.
type Frame struct {
	Class    SizeClass
	Flags    Flag
	NVectors int // number of populated slots, 0..Capacity
	Scalar   []byte
	Vectors  [Capacity]uint32
	magic    uint32
}

// reset clears a Frame for reuse by a (possibly different) allocation,
// within the same size class, per the spec.md §3 invariant that a frame
// returned to a class's free list always matches that class's layout.
func (f *Frame) reset(class SizeClass) {
	f.Class = class
	f.Flags = 0
	f.NVectors = 0
	if cap(f.Scalar) < class.ScalarSize {
		f.Scalar = make([]byte, class.ScalarSize)
	} else {
		f.Scalar = f.Scalar[:class.ScalarSize]
		clear(f.Scalar)
	}
	f.magic = Magic
}

// poison writes a recognizable byte pattern into the vector storage, for
// debug builds (spec.md §4.1).
func (f *Frame) poison() {
	for i := range f.Vectors {
		f.Vectors[i] = uint32(poisonByte)<<24 | uint32(poisonByte)<<16 | uint32(poisonByte)<<8 | uint32(poisonByte)
	}
}

// Append appends one packet index. The caller must ensure NVectors <
// Capacity; Append on a full frame panics, since a write past the last slot
// is forbidden by spec.md §3 and the trailing magic sentinel exists
// precisely to detect such an overrun if it somehow occurs elsewhere.
func (f *Frame) Append(bufferIndex uint32) {
	if f.NVectors >= Capacity {
		panic(fmt.Sprintf("frame: append past capacity %d", Capacity))
	}
	f.Vectors[f.NVectors] = bufferIndex
	f.NVectors++
}

// Full reports whether the frame has exactly Capacity vectors.
func (f *Frame) Full() bool { return f.NVectors >= Capacity }

// CheckMagic validates the trailing sentinel, returning false if it has
// been corrupted (spec.md §8 invariant "magic sentinel ... reads the
// documented constant").
func (f *Frame) CheckMagic() bool { return f.magic == Magic }

// MagicBytes returns the big-endian encoding of the frame's magic
// sentinel, matching find_magic's role in spec.md §4.1 of computing a
// sentinel address — here, a value, since Go frames are not laid out by
// hand in a flat arena of bytes.
func (f *Frame) MagicBytes() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], f.magic)
	return b
}
