package dispatch

import (
	"context"
	"time"

	"github.com/joeycumines/go-longpoll"
	"github.com/pktgraph/vpgraph/frame"
	"github.com/pktgraph/vpgraph/handoff"
	"github.com/pktgraph/vpgraph/nextframe"
	"github.com/pktgraph/vpgraph/node"
	"github.com/pktgraph/vpgraph/pending"
	"github.com/pktgraph/vpgraph/process"
	"github.com/pktgraph/vpgraph/timingwheel"
	"github.com/pktgraph/vpgraph/vpglog"
)

// handoffDrainBudget is the "counter decays from 100" bounded window of
// spec.md §4.5 step 2: a worker that finds the barrier requested drains
// at most this many handoff elements into the pending queue before
// actually rendezvousing, so a sustained producer can't starve the
// barrier indefinitely.
const handoffDrainBudget = 100

// RPCRequest is a cross-thread closure a worker services at the top of
// its tick (spec.md §4.5 step 1), matching the teacher's pattern of
// scheduling arbitrary work as closures onto a channel rather than a
// bespoke request type per call site.
type RPCRequest func()

// HandoffInbound is one inbound ring this worker consumes, tagged with
// the node/arc its dequeued packets should be enqueued against.
type HandoffInbound struct {
	Ring               *handoff.Ring
	TargetRuntimeIndex int
	Arc                int
}

// Worker is one dispatch loop instance (spec.md §4.5, component C5): a
// single goroutine's worth of state, run by exactly one OS
// thread/goroutine pinned for the loop's lifetime. main is the
// distinguished worker that additionally owns the timing wheel.
type Worker struct {
	ID     int
	Main   bool
	Config Config

	Registry   *node.Registry
	Pool       *frame.Pool
	NextFrames *nextframe.Table
	Pending    *pending.Queue
	Poller     *Poller
	Barrier    *Barrier
	Wheel      *timingwheel.Wheel // non-nil only when Main
	Processes  map[int]*process.Process

	HandoffInbound []HandoffInbound
	Outbound       *handoff.Manager

	RPCInbox chan RPCRequest

	Logger *vpglog.Logger

	clockNow time.Time

	interruptFDs []int // scratch, reused across ticks

	// processReady holds process indices marked resume-pending by a
	// directly signaled event (spec.md §4.6 signal_event: "marked
	// resume-pending and placed on the dispatcher's ready list"), drained
	// by dispatchProcesses each tick.
	processReady []int

	// timedEvents is the pool backing SignalTimedEvent's records (spec.md
	// §4.6 signal_timed_event: "allocates a timed-event record, arms a
	// timing-wheel entry, and stores a weak handle"); indices double as the
	// tagged payload of a timingwheel.ForEvent user handle.
	timedEvents    []*timedEvent
	timedEventFree []uint32
}

// timedEvent is one pending signal_timed_event record: the process and
// per-type event payload to materialize once its timing-wheel entry
// expires (spec.md §4.6).
type timedEvent struct {
	process   *process.Process
	eventType uint32
	data      []byte
}

// NewWorker constructs a Worker. sc is the size class handoff-received
// frames are allocated with.
func NewWorker(id int, main bool, cfg Config, registry *node.Registry, pool *frame.Pool, table *nextframe.Table, pendingQueue *pending.Queue, poller *Poller, barrier *Barrier, logger *vpglog.Logger) *Worker {
	return &Worker{
		ID:         id,
		Main:       main,
		Config:     cfg,
		Registry:   registry,
		Pool:       pool,
		NextFrames: table,
		Pending:    pendingQueue,
		Poller:     poller,
		Barrier:    barrier,
		Processes:  make(map[int]*process.Process),
		RPCInbox:   make(chan RPCRequest, 256),
		Logger:     logger,
	}
}

// Tick runs one iteration of the dispatch loop in the order spec.md §4.5
// lists: RPC, barrier+handoff drain, pre-input, input-polling,
// input-interrupt, pending-frame walk, (main-only) timer expiry.
func (w *Worker) Tick(now time.Time) error {
	w.clockNow = now

	w.drainRPC()

	if released := w.Barrier.CheckPoint(); !released.IsZero() {
		w.clockNow = released
	} else {
		w.drainHandoffInbound(handoffDrainBudget)
	}

	w.dispatchType(node.TypePreInput, nil)
	w.dispatchType(node.TypeInput, nil)
	w.dispatchInterruptPending()
	w.dispatchProcesses()
	w.walkPending()

	if w.Main && w.Wheel != nil {
		w.expireTimers(now)
	}

	return nil
}

// drainRPC services queued cross-thread requests via go-longpoll's
// bounded batch receive: MinSize -1 means "don't block waiting for a
// minimum", matching the non-blocking, run-to-completion nature of a
// dispatch tick (spec.md §4.5 step 1 must not stall the loop).
func (w *Worker) drainRPC() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Microsecond)
	defer cancel()
	_ = longpoll.Channel(ctx, &longpoll.ChannelConfig{
		MaxSize:        64,
		MinSize:        -1,
		PartialTimeout: 0,
	}, w.RPCInbox, func(req RPCRequest) error {
		req()
		return nil
	})
}

// drainHandoffInbound moves up to budget handoff elements from every
// inbound ring into the pending queue (spec.md §4.5 step 2), bypassing
// the next-frame table since these packets already traveled as a
// complete batch (pending.NoNextFrame records them as having no
// originating slot).
func (w *Worker) drainHandoffInbound(budget int) {
	remaining := budget
	for _, in := range w.HandoffInbound {
		if remaining <= 0 {
			return
		}
		in.Ring.Dequeue(func(elt *handoff.Element) {
			if remaining <= 0 {
				return
			}
			sc := w.Registry.Node(in.TargetRuntimeIndex).SizeClass()
			idx := w.Pool.Alloc(sc)
			f := w.Pool.Get(idx)
			for i := 0; i < elt.VectorCount; i++ {
				f.Append(elt.Buffers[i])
			}
			w.Pending.Push(pending.Record{
				TargetRuntimeIndex: in.TargetRuntimeIndex,
				Arc:                in.Arc,
				Frame:              idx,
				NextFrameIndex:     pending.NoNextFrame,
			})
			remaining--
		})
	}
}

// dispatchType dispatches every runtime of type t currently in
// StatePolling, with no frame argument (spec.md §4.5 steps 3-4).
func (w *Worker) dispatchType(t node.Type, _ *frame.Frame) {
	for _, rt := range w.Registry.RuntimesOfType(t) {
		if rt.State != node.StatePolling {
			continue
		}
		w.dispatchOne(rt, nil)
	}
}

// dispatchInterruptPending polls for ready input-node fds and dispatches
// each (spec.md §4.5 step 5): "the vector is swapped out atomically
// before iteration" is naturally satisfied here since Wait returns a
// fresh slice of ready runtime indices each call.
func (w *Worker) dispatchInterruptPending() {
	w.interruptFDs = w.interruptFDs[:0]
	var err error
	w.interruptFDs, err = w.Poller.Wait(0, w.interruptFDs)
	if err != nil {
		return
	}
	for _, runtimeIdx := range w.interruptFDs {
		n := w.Registry.Node(runtimeIdx)
		rt := w.Registry.Runtime(n.Index)
		if rt.State != node.StateInterrupt {
			continue
		}
		w.dispatchOne(rt, nil)
	}
}

// dispatchProcesses starts every registered process that hasn't run yet,
// and resumes every process the ready list marked resume-pending since the
// last tick (spec.md §4.6: a directly signaled event "marks resume-pending
// and places on the dispatcher's ready list"). Clock-driven resumes are
// instead handled by expireTimers (spec.md §4.5 step 8); this only covers
// the initial Start and the direct, non-timed signal_event path.
func (w *Worker) dispatchProcesses() {
	for idx, p := range w.Processes {
		if p.Started() || p.State() == process.StateDone {
			continue
		}
		w.runProcess(idx, p, nil)
	}

	ready := w.processReady
	w.processReady = nil
	for _, idx := range ready {
		p, ok := w.Processes[idx]
		if !ok || p.State() == process.StateDone {
			continue
		}
		w.runProcess(idx, p, nil)
	}
}

// runProcess starts or resumes p, then applies spec.md §4.6's "Suspend"
// primitive: if the body is now suspended waiting on the clock, the
// dispatcher (not the process) arms a timing-wheel entry for
// p.ResumeClockInterval and records the resulting weak handle. Any
// previously outstanding clock entry is stopped first — whatever ended the
// prior wait (a timer fire already drained it, or a direct event resumed
// the process out from under it), it no longer applies. w.Wheel is nil on
// non-main workers (spec.md §5: the timing wheel is main-thread-only), so
// processes living there can suspend waiting-event but never waiting-clock.
func (w *Worker) runProcess(idx int, p *process.Process, f *frame.Frame) {
	if h := p.StopTimerHandle; h != timingwheel.NoHandle {
		if w.Wheel != nil {
			w.Wheel.Stop(h)
		}
		p.StopTimerHandle = timingwheel.NoHandle
	}

	var err error
	if !p.Started() {
		err = p.Start(f)
	} else {
		err = p.Resume(f)
	}
	if err != nil && w.Logger != nil {
		vpglog.WithCategory(w.Logger, vpglog.CategoryNode, p.Path).Str("error", err.Error()).Log("process error")
	}

	if w.Wheel == nil {
		return
	}
	switch p.State() {
	case process.StateSuspendedWaitingClock, process.StateSuspendedWaitingBoth:
		p.StopTimerHandle = w.Wheel.Start(timingwheel.ForProcess(uint32(idx)), 0, p.ResumeClockInterval)
	}
}

// SignalEvent delivers an event directly to target (spec.md §6 collaborator
// API signal_event), placing it on the dispatcher's ready list for the next
// tick's dispatchProcesses if it was suspended-waiting-event.
func (w *Worker) SignalEvent(target *process.Process, eventType uint32, data []byte) {
	if target.SignalEvent(eventType, data) {
		w.processReady = append(w.processReady, target.Index)
	}
}

// SignalTimedEvent allocates a timed-event record and arms a timing-wheel
// entry for delayTicks, returning a weak handle the caller may later pass
// to Stop (spec.md §4.6 signal_timed_event, §6 collaborator API). Only
// valid on the main worker, which alone owns the wheel (spec.md §5).
func (w *Worker) SignalTimedEvent(target *process.Process, eventType uint32, delayTicks uint64, data []byte) timingwheel.Handle {
	idx := w.allocTimedEvent(&timedEvent{process: target, eventType: eventType, data: data})
	return w.Wheel.Start(timingwheel.ForEvent(idx), eventType, delayTicks)
}

func (w *Worker) allocTimedEvent(e *timedEvent) uint32 {
	if n := len(w.timedEventFree); n > 0 {
		idx := w.timedEventFree[n-1]
		w.timedEventFree = w.timedEventFree[:n-1]
		w.timedEvents[idx] = e
		return idx
	}
	w.timedEvents = append(w.timedEvents, e)
	return uint32(len(w.timedEvents) - 1)
}

// deliverTimedEvent materializes a matured timed-event record into its
// target process's event queue and frees the record (spec.md §4.5 step 8:
// "materialize the event data into the target process's event queue, free
// the record"). If that leaves the process resume-pending it is placed on
// the ready list rather than resumed here directly — step 8 only resumes
// entries that tag a suspended process outright, not ones that tag a timed
// event.
func (w *Worker) deliverTimedEvent(idx uint32) {
	te := w.timedEvents[idx]
	w.timedEvents[idx] = nil
	w.timedEventFree = append(w.timedEventFree, idx)
	if te == nil {
		return
	}
	if te.process.SignalEvent(te.eventType, te.data) {
		w.processReady = append(w.processReady, te.process.Index)
	}
}

// walkPending drains the pending-frame queue, dispatching each record's
// target internal node with its frame, including records appended by
// dispatches performed during the same walk (spec.md §4.5 steps 6-7;
// pending.Queue.Walk already implements the re-reading loop condition).
//
// The next-frame table re-primes a slot with a fresh frame the moment it
// flushes, so the dispatched frame itself, not the originating slot, is
// what still carries the pending flag once it reaches here; clearing it
// directly is what lets Pool.Free accept it later.
func (w *Worker) walkPending() {
	w.Pending.Walk(func(r pending.Record) {
		n := w.Registry.Node(r.TargetRuntimeIndex)
		rt := w.Registry.Runtime(n.Index)
		f := w.Pool.Get(r.Frame)
		w.dispatchOne(rt, f)
		f.Flags &^= frame.FlagPending
	})
}

// dispatchOne runs one node's function, timestamping before/after per
// spec.md §4.5 "Dispatching a node".
func (w *Worker) dispatchOne(rt *node.Runtime, f *frame.Frame) {
	before := w.clockNow
	after := before
	vectors, err := rt.Dispatch(f, w.Config.PollingThreshold, w.Config.InterruptThreshold, before, after)
	if err != nil && w.Logger != nil {
		vpglog.WithCategory(w.Logger, vpglog.CategoryNode, rt.Node.Path).Str("error", err.Error()).Log("node dispatch error")
	}
	_ = vectors
	if w.Registry.NoteModeSwitch(rt) {
		if w.Logger != nil {
			vpglog.WithCategory(w.Logger, vpglog.CategoryDispatch, rt.Node.Path).Log("mode switch")
		}
	}
}

// expireTimers advances the main-thread-only timing wheel and resumes
// whichever processes or delivers whichever timed events matured
// (spec.md §4.5 step 8).
func (w *Worker) expireTimers(now time.Time) {
	nowTicks := uint64(now.UnixMicro() / 10) // ~10us granularity, per spec.md §4.7
	expired := w.Wheel.ExpireTimers(nowTicks)
	for _, e := range expired {
		idx := e.Handle.Index()
		if e.Handle.IsEvent() {
			w.deliverTimedEvent(idx)
			continue
		}
		if p, ok := w.Processes[int(idx)]; ok {
			// The wheel already fired and freed this entry; clear the
			// stale handle before runProcess's own bookkeeping looks at
			// it, so a subsequent Start never mistakes a recycled handle
			// for one it still owns.
			p.StopTimerHandle = timingwheel.NoHandle
			w.runProcess(int(idx), p, nil)
		}
	}
}
