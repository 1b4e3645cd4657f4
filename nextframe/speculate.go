package nextframe

import "github.com/pktgraph/vpgraph/frame"

// Speculator drives the speculative enqueue protocol of spec.md §4.2,
// ported from vlib_validate_buffer_enqueue_x{1,2,4}
// (original_source/src/vlib/buffer_node.h): a node function processing a
// frame usually sends every packet to the same next arc as the packet
// before it, so the common case appends straight into that arc's
// already-open next-frame without touching the table. A packet whose
// resolved arc disagrees is rewound off the speculative frame and
// reissued onto its own arc's slot via SetNextFrameBuffer.
//
// Single/dual/quad forms exist in the original purely for instruction
// scheduling across parallel prefetches; that rationale doesn't carry
// over to Go, so EnqueueDual and EnqueueQuad are expressed in terms of
// Enqueue1 while preserving the cached-arc-correction heuristic ("if the
// last two packets of a batch agree on a different arc than the cache,
// switch the cache to it") described in spec.md §4.2.
type Speculator struct {
	table   *Table
	sc      frame.SizeClass
	producer int

	// target maps an arc ordinal to the node runtime index it points at,
	// i.e. producer node's own Arcs[arc].
	target func(arc int) int

	cachedArc int
	current   *frame.Frame
	left      int
}

// NewSpeculator begins a speculative-enqueue pass for one node's
// dispatch, seeded with its current cached arc (spec.md §3 Node runtime
// "CachedNextIndex").
func NewSpeculator(table *Table, producerRuntimeIndex, cachedArc int, sc frame.SizeClass, target func(arc int) int) *Speculator {
	s := &Speculator{
		table:     table,
		sc:        sc,
		producer:  producerRuntimeIndex,
		target:    target,
		cachedArc: cachedArc,
	}
	s.current, _ = table.GetNextFrame(producerRuntimeIndex, cachedArc, target(cachedArc), sc)
	return s
}

// Enqueue1 appends bufferIndex, which resolved to arc, to its next-frame
// slot. If arc matches the speculative cached arc the append is a single
// slice write against the already-open frame; otherwise this is the slow
// path: the buffer is set directly onto arc's own slot.
func (s *Speculator) Enqueue1(bufferIndex uint32, arc int) {
	if arc == s.cachedArc {
		s.current.Append(bufferIndex)
		return
	}
	s.table.SetNextFrameBuffer(s.producer, arc, s.target(arc), s.sc, bufferIndex)
}

// EnqueueDual processes two packets at once, switching the cached arc to
// whatever both agree on when neither matches the current cache — the
// "tail-pair" heuristic of vlib_validate_buffer_enqueue_x2's next_index
// update.
func (s *Speculator) EnqueueDual(bi0, bi1 uint32, arc0, arc1 int) {
	if arc0 == arc1 && arc0 != s.cachedArc {
		s.switchCache(arc0)
	}
	s.Enqueue1(bi0, arc0)
	s.Enqueue1(bi1, arc1)
}

// EnqueueQuad processes four packets at once. Following
// vlib_validate_buffer_enqueue_x4's "fix_speculation" check, the cache
// switches on the tail pair agreeing with each other and disagreeing with
// the cache (arc[2] == arc[3] != cachedArc), regardless of what arc[0] and
// arc[1] resolved to — not a 4-way mutual-agreement requirement, which
// would under-trigger the switch for batches where only the tail settles
// on a new arc.
func (s *Speculator) EnqueueQuad(bi [4]uint32, arc [4]int) {
	if arc[2] == arc[3] && arc[2] != s.cachedArc {
		s.switchCache(arc[2])
	}
	for i := 0; i < 4; i++ {
		s.Enqueue1(bi[i], arc[i])
	}
}

// switchCache flushes the currently-open speculative frame and reopens
// the table's slot for newArc as the new speculative target.
func (s *Speculator) switchCache(newArc int) {
	s.Finish()
	s.cachedArc = newArc
	s.current, _ = s.table.GetNextFrame(s.producer, newArc, s.target(newArc), s.sc)
}

// CachedArc returns the arc the dispatcher should persist into the node
// runtime's CachedNextIndex for the next dispatch.
func (s *Speculator) CachedArc() int { return s.cachedArc }

// Finish flushes the currently-open speculative frame via the table's
// put_next_frame (spec.md §4.2), whether or not it reached Capacity — a
// dispatch doesn't always produce a full frame, and the pending record
// must still reach its target. Must be called once after the last
// Enqueue* of a dispatch.
func (s *Speculator) Finish() {
	s.table.Flush(s.producer, s.cachedArc, s.sc)
}
