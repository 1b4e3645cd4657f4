// Package nextframe implements the next-frame table (spec.md §4.2,
// component C2): per-(producer node, outgoing arc) reservation of a frame
// in flight, the speculative-enqueue protocol, and ownership transfer when
// two producers' arcs converge on the same target (node, arc).
//
// The speculative single/dual/quad-packet enqueue forms are a direct port
// of vlib_validate_buffer_enqueue_x{1,2,4} (original_source/src/vlib/
// buffer_node.h), expressed as ordinary Go functions rather than C
// macros — the design note in spec.md §9 explicitly allows this
// ("inlined generic function ... as long as the n_vectors bookkeeping and
// pending-flag transitions above are preserved exactly").
package nextframe

import (
	"github.com/pktgraph/vpgraph/frame"
)

// Flag bits on a Slot (spec.md §3 Next-frame slot).
type Flag uint32

const (
	FlagOwner Flag = 1 << iota
	FlagAllocated
	FlagPending
	FlagTrace
	FlagNoFreeAfterDispatch
)

// key identifies a next-frame slot: the producer's runtime index and its
// arc ordinal (the position within that node's own declared arc list, not
// a global arc number).
type key struct {
	producer int
	arc      int
}

// Slot is the per-(producer node, outgoing arc) next-frame state
// (spec.md §3).
type Slot struct {
	Frame             frame.Index
	Flags             Flag
	Target            int // target runtime index this slot currently feeds
	SinceLastOverflow uint32
}

// PendingRewriter is implemented by the pending-frame queue (component
// C3), allowing the next-frame table to rewrite any pending record that
// referenced a frame which just changed owning next-frame index, without
// nextframe importing pending (which would create an import cycle, since
// pending needs to enqueue via this table).
type PendingRewriter interface {
	RewriteOriginatingSlot(oldFrame frame.Index, newNextFrameIndex int)
}

// Pusher is implemented by the pending-frame queue's Push side, letting
// Flush hand a completed frame straight to the pending queue instead of
// making every node Function responsible for that bookkeeping.
type Pusher interface {
	PushPending(targetRuntimeIndex, arc int, f frame.Index, nextFrameIndex int)
}

// Table is one worker's next-frame table: all of that worker's
// producer/arc slots, plus the reverse index from target runtime to the
// slot currently holding the owner bit for it (spec.md §4.2 ownership
// invariant: "at most one producer holds the owner bit for a given
// (target node, target arc) at a time").
type Table struct {
	pool    *frame.Pool
	pending PendingRewriter
	pusher  Pusher

	slots map[key]*Slot
	owner map[int]key // target runtime index -> owning slot key

	// nextFrameIndex assigns a stable small integer to each (producer,
	// arc) slot the first time it is seen, for PendingRewriter's use as
	// an "originating next-frame index" handle (spec.md §3 Pending-frame
	// record: "originating next-frame index or 'no next'").
	nextFrameIndex map[key]int
	indexSeq       int
}

// NoNextFrame is the sentinel for a pending record enqueued via a direct
// put_frame_to_node call that bypassed a next-frame slot (spec.md §4.3).
const NoNextFrame = -1

// NewTable constructs an empty Table over pool, notifying pending of any
// frame-swap-induced rewrites and pushing completed frames to it directly.
// pending may be nil in tests that only exercise frame/slot mechanics.
func NewTable(pool *frame.Pool, pending interface {
	PendingRewriter
	Pusher
}) *Table {
	t := &Table{
		pool:           pool,
		slots:          make(map[key]*Slot),
		owner:          make(map[int]key),
		nextFrameIndex: make(map[key]int),
	}
	if pending != nil {
		t.pending = pending
		t.pusher = pending
	}
	return t
}

func (t *Table) slotFor(k key) *Slot {
	s, ok := t.slots[k]
	if !ok {
		s = &Slot{Frame: frame.NoFrame}
		t.slots[k] = s
		t.nextFrameIndex[k] = t.indexSeq
		t.indexSeq++
	}
	return s
}

// IndexOf returns the stable next-frame-index handle for (producer, arc),
// assigning one if this is the first reference.
func (t *Table) IndexOf(producerRuntimeIndex, arc int) int {
	k := key{producerRuntimeIndex, arc}
	t.slotFor(k) // ensure assigned
	return t.nextFrameIndex[k]
}

// GetNextFrame ensures the (producer, arc) slot owns a frame targeting
// targetRuntimeIndex and returns it along with the slot, for the caller to
// append packet indices into (spec.md §4.2 get_next_frame).
//
// If the slot is not owner of targetRuntimeIndex, ownership is taken. If a
// different slot currently owns it, the two slots' frames are swapped and
// any pending record referencing the displaced frame is rewritten to
// point at its new owning next-frame index.
func (t *Table) GetNextFrame(producerRuntimeIndex, arc, targetRuntimeIndex int, sc frame.SizeClass) (*frame.Frame, *Slot) {
	k := key{producerRuntimeIndex, arc}
	s := t.slotFor(k)

	if prevKey, owned := t.owner[targetRuntimeIndex]; !owned || prevKey != k {
		if owned {
			prevSlot := t.slots[prevKey]
			// Swap frames: this slot takes the previous owner's
			// in-flight frame (possibly already partially filled);
			// the previous owner is left holding this slot's old
			// (usually empty/none) frame.
			displaced := prevSlot.Frame
			prevSlot.Frame, s.Frame = s.Frame, prevSlot.Frame
			prevSlot.Flags &^= FlagOwner

			if displaced != frame.NoFrame && t.pending != nil {
				t.pending.RewriteOriginatingSlot(displaced, t.nextFrameIndex[k])
			}
		}
		t.owner[targetRuntimeIndex] = k
		s.Flags |= FlagOwner
	}

	if s.Frame == frame.NoFrame {
		s.Frame = t.pool.Alloc(sc)
		s.Flags |= FlagAllocated
	}
	s.Target = targetRuntimeIndex

	return t.pool.Get(s.Frame), s
}

// Flush implements spec.md §4.2's put_next_frame: if the slot's frame is
// non-empty, it is flagged pending and handed to the pending queue via
// Pusher, and the slot is immediately re-primed with a freshly allocated
// empty frame targeting the same producer/arc — per spec.md §4.2's named
// invariant, "the slot either (a) owns an allocated empty frame, or (b)
// owns an allocated partially-filled frame" holds both before and after
// Flush returns; it never leaves the slot owning no frame at all, matching
// vlib_put_next_frame's behavior of re-priming in place rather than
// leaving the slot bare until the next get_next_frame call.
func (t *Table) Flush(producerRuntimeIndex, arc int, sc frame.SizeClass) {
	k := key{producerRuntimeIndex, arc}
	s, ok := t.slots[k]
	if !ok || s.Frame == frame.NoFrame {
		return
	}
	f := t.pool.Get(s.Frame)
	if f.NVectors == 0 {
		return
	}
	f.Flags |= frame.FlagPending

	flushed := s.Frame
	if t.pusher != nil {
		t.pusher.PushPending(s.Target, arc, flushed, t.nextFrameIndex[k])
	}

	s.Frame = t.pool.Alloc(sc)
	s.Flags |= FlagAllocated
}

// FrameOf returns the frame index currently held by (producer, arc)'s
// slot, or frame.NoFrame if it holds none. Exposed for tests and for
// Speculator's fast-path cache validation.
func (t *Table) FrameOf(producerRuntimeIndex, arc int) frame.Index {
	k := key{producerRuntimeIndex, arc}
	if s, ok := t.slots[k]; ok {
		return s.Frame
	}
	return frame.NoFrame
}

// SetNextFrameBuffer is the convenience operation of spec.md §4.2
// set_next_frame_buffer: get the next frame for (producer, arc) targeting
// targetRuntimeIndex, append one buffer index, and put it back
// unconditionally — vlib_put_next_frame marks a slot pending whenever its
// frame is non-empty, with no fullness check, since a single packet that
// never gets joined by another on the same (producer, arc) still has to
// reach its target eventually. Flush itself is the one that no-ops on an
// empty frame, so calling it here on every append is cheap and correct
// whether or not this call happened to fill the frame.
func (t *Table) SetNextFrameBuffer(producerRuntimeIndex, arc, targetRuntimeIndex int, sc frame.SizeClass, bufferIndex uint32) {
	f, _ := t.GetNextFrame(producerRuntimeIndex, arc, targetRuntimeIndex, sc)
	f.Append(bufferIndex)
	t.Flush(producerRuntimeIndex, arc, sc)
}
