package nextframe

import (
	"testing"

	"github.com/pktgraph/vpgraph/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRewriter struct {
	old   frame.Index
	idx   int
	calls int

	pushes []pushedRecord
}

type pushedRecord struct {
	target, arc    int
	frame          frame.Index
	nextFrameIndex int
}

func (r *recordingRewriter) RewriteOriginatingSlot(oldFrame frame.Index, newNextFrameIndex int) {
	r.old, r.idx = oldFrame, newNextFrameIndex
	r.calls++
}

func (r *recordingRewriter) PushPending(targetRuntimeIndex, arc int, f frame.Index, nextFrameIndex int) {
	r.pushes = append(r.pushes, pushedRecord{targetRuntimeIndex, arc, f, nextFrameIndex})
}

func TestTable_GetNextFrame_AllocatesOnce(t *testing.T) {
	pool := frame.NewPool(false)
	tbl := NewTable(pool, nil)
	sc := frame.SizeClass{VectorSize: 4}

	f1, _ := tbl.GetNextFrame(0, 0, 7, sc)
	f1.Append(1)
	f2, _ := tbl.GetNextFrame(0, 0, 7, sc)
	assert.Same(t, f1, f2, "repeated GetNextFrame for the same (producer,arc) returns the same in-flight frame")
	assert.Equal(t, 1, f2.NVectors)
}

func TestTable_OwnershipTransfer_SwapsFrames(t *testing.T) {
	pool := frame.NewPool(false)
	rewriter := &recordingRewriter{}
	tbl := NewTable(pool, rewriter)
	sc := frame.SizeClass{VectorSize: 4}

	// Producer A's arc 0 targets runtime 5 first, and appends a packet.
	fA, _ := tbl.GetNextFrame(0 /*producer A*/, 0, 5, sc)
	fA.Append(42)
	origFrame := tbl.FrameOf(0, 0)

	// Producer B's arc 1 now also targets runtime 5: ownership transfers,
	// and B's slot should take over A's in-flight (non-empty) frame.
	fB, _ := tbl.GetNextFrame(1 /*producer B*/, 1, 5, sc)
	require.Equal(t, 1, fB.NVectors, "B's slot should inherit A's partially filled frame")
	assert.Equal(t, origFrame, tbl.FrameOf(1, 1))
	assert.Equal(t, 1, rewriter.calls)
}

func TestTable_Flush_PushesPendingOnce(t *testing.T) {
	pool := frame.NewPool(false)
	rec := &recordingRewriter{}
	tbl := NewTable(pool, rec)
	sc := frame.SizeClass{VectorSize: 4}

	f, _ := tbl.GetNextFrame(0, 0, 1, sc)
	f.Append(9)

	tbl.Flush(0, 0, sc)
	require.Len(t, rec.pushes, 1)
	assert.Equal(t, 1, rec.pushes[0].target)
	assert.NotEqual(t, frame.NoFrame, tbl.FrameOf(0, 0), "slot is re-primed with a fresh frame, never left empty-handed")
	assert.Equal(t, 0, pool.Get(tbl.FrameOf(0, 0)).NVectors)

	// The re-primed frame is empty, so a second Flush before any new
	// append is a no-op: it must not push again.
	tbl.Flush(0, 0, sc)
	assert.Len(t, rec.pushes, 1, "already-flushed slot must not re-signal")
}

func TestSpeculator_FastPathStaysOnCachedArc(t *testing.T) {
	pool := frame.NewPool(false)
	rec := &recordingRewriter{}
	tbl := NewTable(pool, rec)
	sc := frame.SizeClass{VectorSize: 4}
	target := func(arc int) int { return arc + 100 }

	s := NewSpeculator(tbl, 0, 3, sc, target)
	s.Enqueue1(1, 3)
	s.Enqueue1(2, 3)
	s.Finish()

	require.Len(t, rec.pushes, 1)
	f := pool.Get(rec.pushes[0].frame)
	assert.Equal(t, 2, f.NVectors)
	assert.Equal(t, 3, s.CachedArc())
}

func TestSpeculator_QuadSwitchesCacheWhenAllAgree(t *testing.T) {
	pool := frame.NewPool(false)
	rec := &recordingRewriter{}
	tbl := NewTable(pool, rec)
	sc := frame.SizeClass{VectorSize: 4}
	target := func(arc int) int { return arc + 100 }

	s := NewSpeculator(tbl, 0, 0, sc, target)
	s.EnqueueQuad([4]uint32{10, 11, 12, 13}, [4]int{5, 5, 5, 5})
	s.Finish()

	assert.Equal(t, 5, s.CachedArc())
	require.Len(t, rec.pushes, 1)
	f := pool.Get(rec.pushes[0].frame)
	assert.Equal(t, 4, f.NVectors)
}

func TestSpeculator_QuadSwitchesCacheOnTailPairOnly(t *testing.T) {
	pool := frame.NewPool(false)
	rec := &recordingRewriter{}
	tbl := NewTable(pool, rec)
	sc := frame.SizeClass{VectorSize: 4}
	target := func(arc int) int { return arc + 100 }

	// arc[0] and arc[1] disagree with everything; only the tail pair
	// (arc[2], arc[3]) agrees, and on a different arc than the cache. The
	// cache must still switch, matching vlib_validate_buffer_enqueue_x4's
	// tail-pair-only "fix_speculation" condition rather than requiring all
	// four to mutually agree.
	s := NewSpeculator(tbl, 0, 0, sc, target)
	s.EnqueueQuad([4]uint32{20, 21, 22, 23}, [4]int{1, 2, 9, 9})
	s.Finish()

	assert.Equal(t, 9, s.CachedArc())
}
