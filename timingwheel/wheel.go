// Package timingwheel implements the hierarchical timing wheel (spec.md
// §4.7, component C7): 1-3 rings of 2^k slots, each slot the head of a
// doubly-linked list of timer entries, with descent from a coarser ring
// into the next-finer one whenever the finer ring wraps.
//
// Ring geometry (RingBits, RingCount) is grounded on
// original_source/src/vppinfra/tw_timer_template.h's TW_TIMER_WHEELS /
// TW_SLOTS_PER_RING / TW_RING_SHIFT parameters (that file is a C template
// instantiated multiple times for different wheel shapes; here the shape
// is a runtime configuration instead, per spec.md's Go-native allowance).
package timingwheel

// Handle identifies a started timer, an arena index into the entry pool
// (spec.md §9 design note on 32-bit-index handles rather than pointers).
type Handle int32

// NoHandle is the "none"/free sentinel.
const NoHandle Handle = -1

// suspendedProcessBit discriminates a suspended-process index from a
// timed-event index within a 32-bit user handle (spec.md §4.7: "a 32-bit
// user handle whose high bit discriminates").
const suspendedProcessBit = uint32(1) << 31

// UserHandle wraps the caller's payload with the discriminating bit.
type UserHandle uint32

// ForProcess and ForEvent construct a UserHandle tagging which kind of
// waiter index is, well, indexed.
func ForProcess(index uint32) UserHandle { return UserHandle(index) }
func ForEvent(index uint32) UserHandle   { return UserHandle(index) | UserHandle(suspendedProcessBit) }

// IsEvent reports whether this handle tags a timed-event index rather
// than a suspended-process index.
func (h UserHandle) IsEvent() bool { return uint32(h)&suspendedProcessBit != 0 }

// Index returns the tagged index with the discriminator bit stripped.
func (h UserHandle) Index() uint32 { return uint32(h) &^ suspendedProcessBit }

type entry struct {
	handle   UserHandle
	timerID  uint32
	expiry   uint64 // absolute tick, in the finest ring's units
	prev, next Handle
	slot     int
	ring     int
	inUse    bool
}

// Wheel is a hierarchical timing wheel of 1-3 rings.
//
// Not safe for concurrent use: spec.md §5 dedicates the wheel to the main
// thread only.
type Wheel struct {
	ringBits  []uint // bits per ring, finest first
	ringMask  []uint64
	slots     [][]Handle // slots[ring][idx] = head entry handle, or NoHandle
	current   []uint64   // current_index per ring

	entries []entry
	free    []Handle

	currentTick uint64
	maxExpirations int
}

// NewWheel constructs a Wheel with the given ring bit-widths (1 to 3
// entries, finest ring first), e.g. NewWheel(maxExpirations, 11) for a
// single 2048-slot ring or NewWheel(maxExpirations, 11, 10) for a
// fast/slow pair.
func NewWheel(maxExpirations int, ringBits ...uint) *Wheel {
	if len(ringBits) < 1 || len(ringBits) > 3 {
		panic("timingwheel: must have 1 to 3 rings")
	}
	w := &Wheel{
		ringBits:       ringBits,
		ringMask:       make([]uint64, len(ringBits)),
		slots:          make([][]Handle, len(ringBits)),
		current:        make([]uint64, len(ringBits)),
		maxExpirations: maxExpirations,
	}
	for i, b := range ringBits {
		n := 1 << b
		w.ringMask[i] = uint64(n - 1)
		w.slots[i] = make([]Handle, n)
		for j := range w.slots[i] {
			w.slots[i][j] = NoHandle
		}
	}
	return w
}

func (w *Wheel) alloc() Handle {
	if n := len(w.free); n > 0 {
		h := w.free[n-1]
		w.free = w.free[:n-1]
		return h
	}
	w.entries = append(w.entries, entry{})
	return Handle(len(w.entries) - 1)
}

// Start inserts a new timer expiring at currentTick+intervalTicks,
// descending into the appropriate ring based on how far out that falls
// (spec.md §4.7 start).
func (w *Wheel) Start(handle UserHandle, timerID uint32, intervalTicks uint64) Handle {
	h := w.alloc()
	expiry := w.currentTick + intervalTicks
	ring := w.ringFor(intervalTicks)
	slot := int((expiry >> w.ringOffsetBits(ring)) & w.ringMask[ring])

	e := &w.entries[h]
	*e = entry{handle: handle, timerID: timerID, expiry: expiry, ring: ring, slot: slot, inUse: true, prev: NoHandle, next: NoHandle}
	w.linkInto(h, ring, slot)
	return h
}

// ringFor picks the coarsest ring whose full span can still reach
// intervalTicks out from the current tick without it landing in a slot
// already passed — i.e. the finest ring capable of representing the
// interval. Entries inserted with a reach beyond the finest ring
// descend from the coarser ring as expire_timers advances.
func (w *Wheel) ringFor(intervalTicks uint64) int {
	span := uint64(1) << w.ringBits[0]
	if intervalTicks < span || len(w.ringBits) == 1 {
		return 0
	}
	span <<= w.ringBits[min(1, len(w.ringBits)-1)]
	if len(w.ringBits) >= 2 && (intervalTicks < span || len(w.ringBits) == 2) {
		return min(1, len(w.ringBits)-1)
	}
	return len(w.ringBits) - 1
}

func (w *Wheel) ringOffsetBits(ring int) uint {
	var total uint
	for i := 0; i < ring; i++ {
		total += w.ringBits[i]
	}
	return total
}

func (w *Wheel) linkInto(h Handle, ring, slot int) {
	e := &w.entries[h]
	e.ring, e.slot = ring, slot
	head := w.slots[ring][slot]
	e.next = head
	e.prev = NoHandle
	if head != NoHandle {
		w.entries[head].prev = h
	}
	w.slots[ring][slot] = h
}

func (w *Wheel) unlink(h Handle) {
	e := &w.entries[h]
	if e.prev != NoHandle {
		w.entries[e.prev].next = e.next
	} else {
		w.slots[e.ring][e.slot] = e.next
	}
	if e.next != NoHandle {
		w.entries[e.next].prev = e.prev
	}
	e.prev, e.next = NoHandle, NoHandle
}

// Stop unlinks and frees entry h. Idempotent: stopping an already-free
// handle (HandleIsFree) is a no-op, matching spec.md §4.7's
// handle_is_free check (cancellation racing expiry is safe).
func (w *Wheel) Stop(h Handle) {
	if w.HandleIsFree(h) {
		return
	}
	w.unlink(h)
	w.entries[h].inUse = false
	w.free = append(w.free, h)
}

// HandleIsFree reports whether h is not (or no longer) a live timer.
func (w *Wheel) HandleIsFree(h Handle) bool {
	return h == NoHandle || int(h) >= len(w.entries) || !w.entries[h].inUse
}

// Update stops and restarts h with a new interval, preserving its
// UserHandle and timer ID (spec.md §4.7 update: "stop-then-start").
func (w *Wheel) Update(h Handle, newIntervalTicks uint64) Handle {
	e := w.entries[h]
	w.Stop(h)
	return w.Start(e.handle, e.timerID, newIntervalTicks)
}

// Expired is one drained timer: its tagged handle and the timer ID it was
// started with.
type Expired struct {
	Handle  UserHandle
	TimerID uint32
}

// ExpireTimers advances currentTick to floor(nowTicks) (already expressed
// in the finest ring's tick units by the caller) and drains every slot
// passed along the way, across all rings, descending coarser-ring entries
// into finer rings as their containing ring wraps (spec.md §4.7
// expire_timers). Bounded by maxExpirations per call.
func (w *Wheel) ExpireTimers(nowTicks uint64) []Expired {
	var out []Expired
	for w.currentTick < nowTicks && len(out) < w.maxExpirations {
		w.currentTick++
		w.advanceOneTick(&out)
	}
	return out
}

func (w *Wheel) advanceOneTick(out *[]Expired) {
	fineSlot := int(w.currentTick & w.ringMask[0])
	w.drainSlot(0, fineSlot, out)

	if fineSlot != 0 || len(w.ringBits) == 1 {
		return
	}
	// Fine ring wrapped: descend one slot's worth of entries from the
	// next ring up into the fine ring (spec.md §4.7: "when the fast ring
	// wraps, descend one entry per encountered slow-ring entry").
	w.descend(1, out)
}

func (w *Wheel) descend(ring int, out *[]Expired) {
	if ring >= len(w.ringBits) {
		return
	}
	slot := int((w.currentTick >> w.ringOffsetBits(ring)) & w.ringMask[ring])
	head := w.slots[ring][slot]
	w.slots[ring][slot] = NoHandle
	for head != NoHandle {
		next := w.entries[head].next
		w.entries[head].prev, w.entries[head].next = NoHandle, NoHandle
		if w.entries[head].expiry <= w.currentTick {
			w.fire(head, out)
		} else {
			targetRing := 0
			targetSlot := int((w.entries[head].expiry >> w.ringOffsetBits(0)) & w.ringMask[0])
			w.linkInto(head, targetRing, targetSlot)
		}
		head = next
	}
	if slot == 0 && ring+1 < len(w.ringBits) {
		w.descend(ring+1, out)
	}
}

func (w *Wheel) drainSlot(ring, slot int, out *[]Expired) {
	head := w.slots[ring][slot]
	w.slots[ring][slot] = NoHandle
	for head != NoHandle {
		next := w.entries[head].next
		w.entries[head].prev, w.entries[head].next = NoHandle, NoHandle
		w.fire(head, out)
		head = next
	}
}

func (w *Wheel) fire(h Handle, out *[]Expired) {
	e := &w.entries[h]
	*out = append(*out, Expired{Handle: e.handle, TimerID: e.timerID})
	e.inUse = false
	w.free = append(w.free, h)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
