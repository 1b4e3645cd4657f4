package handoff

import "github.com/pktgraph/vpgraph/frame"

// Manager is a producer worker's view of its outbound handoff rings, one
// per destination worker, implementing the enqueue_to_thread variant of
// spec.md §4.2/§4.8: group packets by destination worker, pull a handoff
// element per worker and flush when full, and on congestion add the
// packet to a drop batch freed in one call at the end.
type Manager struct {
	pool  *frame.Pool
	rings []*Ring // indexed by destination worker id

	held  []*heldElement // one partially-filled element per destination, lazily acquired
	drops []uint32
	dropCount uint64
}

type heldElement struct {
	slot uint64
	elt  *Element
}

// NewManager constructs a Manager over one Ring per destination worker
// (rings[i] is this worker's outbound ring to worker i; a nil entry means
// "no direct route", e.g. self).
func NewManager(pool *frame.Pool, rings []*Ring) *Manager {
	return &Manager{
		pool:  pool,
		rings: rings,
		held:  make([]*heldElement, len(rings)),
	}
}

// EnqueueToThread routes bufferIndex to destWorker, appending to that
// worker's currently held element, acquiring a new one if needed or if
// the held one is full, or adding the buffer to the drop batch if the
// destination ring is congested (spec.md §4.8 congestion test; dropping
// is the only policy the exposed API supports, per spec.md §7).
func (m *Manager) EnqueueToThread(destWorker int, bufferIndex uint32) {
	ring := m.rings[destWorker]
	if ring == nil {
		m.drop(bufferIndex)
		return
	}

	h := m.held[destWorker]
	if h == nil {
		if ring.IsCongested() {
			m.drop(bufferIndex)
			return
		}
		slot, elt := ring.Acquire()
		h = &heldElement{slot: slot, elt: elt}
		m.held[destWorker] = h
	}

	h.elt.Buffers[h.elt.VectorCount] = bufferIndex
	h.elt.VectorCount++

	if h.elt.VectorCount == ElementSlots {
		ring.Publish(h.slot)
		m.held[destWorker] = nil
	}
}

func (m *Manager) drop(bufferIndex uint32) {
	m.drops = append(m.drops, bufferIndex)
}

// FlushAll publishes every currently held (possibly short) element across
// all destinations. Called on every dispatch of the handoff-source node
// (spec.md §4.8: "on worker boundary ... all held elements are published
// even if short, to prevent head-of-line stalls") — unconditionally, per
// the Open Question resolution in SPEC_FULL.md §D.2: the source always
// flushes, and the commented-out "only if rate changed" heuristic is not
// implemented.
func (m *Manager) FlushAll() {
	for dest, h := range m.held {
		if h == nil {
			continue
		}
		m.rings[dest].Publish(h.slot)
		m.held[dest] = nil
	}
}

// DrainDrops returns the accumulated drop batch and the running drop
// counter, freeing the pool frame backing each dropped buffer index is
// the caller's responsibility (the buffer index alone does not identify
// its owning frame in this model; callers drop at the per-packet level
// via their own buffer/frame bookkeeping). The internal batch is cleared.
func (m *Manager) DrainDrops() (dropped []uint32, totalDropped uint64) {
	m.dropCount += uint64(len(m.drops))
	dropped = m.drops
	m.drops = nil
	return dropped, m.dropCount
}
