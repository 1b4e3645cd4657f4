// Package process implements the cooperative "process" facility (spec.md
// §4.6, component C6): nodes whose function body can suspend mid-call and
// be resumed later by the dispatcher, driven by wait-for-event and
// wait-for-clock primitives.
//
// spec.md §9's design notes explicitly free this component from any
// particular stackful-coroutine mechanism ("a goroutine blocked on a
// channel receive is an entirely sufficient and more idiomatic substitute
// for a dedicated OS-level stack + setjmp/longjmp"); the teacher's own
// event loop (eventloop/loop.go) signals cross-goroutine state transitions
// with small buffered or unbuffered channels rather than condition
// variables, and that is the idiom this package follows: a process body
// runs on its own goroutine and blocks on an unbuffered "resume" channel
// at a suspend point, while the dispatcher blocks on a "suspended"
// channel waiting to learn the process yielded.
package process

import (
	"github.com/pktgraph/vpgraph/frame"
	"github.com/pktgraph/vpgraph/timingwheel"
)

// State is a process's current dispatch state (spec.md §4.6 "States").
type State uint8

const (
	StateRunning State = iota
	StateSuspendedWaitingClock
	StateSuspendedWaitingEvent
	StateSuspendedWaitingBoth
	StateDone
)

// Body is a process node's function. It receives a Context through which
// it suspends, and the frame (if any) it was started or resumed with.
type Body func(ctx *Context, f *frame.Frame) error

// Context is the handle a running process body uses to suspend itself.
// It is only valid for the duration of one Body invocation's goroutine
// lifetime.
type Context struct {
	resume  chan resumeSignal
	suspend chan suspendSignal
}

type resumeSignal struct {
	frame *frame.Frame
}

type suspendSignal struct {
	waitClock          bool
	waitEvent          bool
	clockIntervalTicks uint64
	done               bool
	err                error
}

// WaitForEvent suspends the calling process until the dispatcher resumes
// it via Resume after a signaled event, per spec.md §4.6's
// suspended-waiting-event state. It returns the frame (if any) the
// dispatcher resumed it with.
func (c *Context) WaitForEvent() *frame.Frame {
	c.suspend <- suspendSignal{waitEvent: true}
	r := <-c.resume
	return r.frame
}

// WaitForClock suspends until the dispatcher resumes it after the armed
// timing-wheel entry for intervalTicks expires (spec.md §4.6
// suspended-waiting-clock). The caller does not arm the wheel itself —
// the dispatcher does so upon observing this suspend reason, per the
// "Suspend" primitive's description ("dispatcher ... arms a timing-wheel
// entry for its resume_clock_interval"); intervalTicks is carried across
// to the dispatcher via Process.ResumeClockInterval for that purpose.
func (c *Context) WaitForClock(intervalTicks uint64) *frame.Frame {
	c.suspend <- suspendSignal{waitClock: true, clockIntervalTicks: intervalTicks}
	r := <-c.resume
	return r.frame
}

// Process is a running-or-suspended process instance (spec.md §3 "process
// instance": body goroutine, current state, pending event queues).
type Process struct {
	Index int
	Path  string

	state State
	ctx   *Context
	body  Body

	events map[uint32][]EventRecord

	started bool

	// ResumeClockInterval is the interval (in timing-wheel ticks) requested
	// by the most recent WaitForClock suspend (spec.md §3 process instance
	// "resume_clock_interval"); the dispatcher reads this after a suspend to
	// know what to arm.
	ResumeClockInterval uint64

	// StopTimerHandle is the timing-wheel entry the dispatcher armed for
	// this process's outstanding clock suspend, or timingwheel.NoHandle
	// when none is outstanding (spec.md §3 "stop_timer_handle"). Owned by
	// the dispatcher, not this package; process.go never calls into
	// timingwheel itself since the wheel is main-thread-only (spec.md §5).
	StopTimerHandle timingwheel.Handle
}

// EventRecord is one signaled event awaiting delivery to a suspended
// process (spec.md §4.6 signal_event: "allocates space in the process's
// per-type event queue").
type EventRecord struct {
	Type uint32
	Data []byte
}

// NewProcess constructs a process around body, not yet started.
func NewProcess(index int, path string, body Body) *Process {
	return &Process{
		Index:           index,
		Path:            path,
		body:            body,
		events:          make(map[uint32][]EventRecord),
		StopTimerHandle: timingwheel.NoHandle,
	}
}

// State returns the process's current dispatch state.
func (p *Process) State() State { return p.state }

// Started reports whether Start has ever been called on this process,
// letting the dispatcher distinguish "not yet started" from "suspended"
// without separately tracking that itself.
func (p *Process) Started() bool { return p.started }

// Start launches the process body on its own goroutine if not already
// started, per spec.md §4.6's "Start": the dispatcher's call blocks until
// the body either returns or hits its first suspend point, exactly as a
// longjmp back to the dispatcher's return buffer would.
func (p *Process) Start(f *frame.Frame) error {
	if p.started {
		return p.Resume(f)
	}
	p.started = true
	p.state = StateRunning
	p.ctx = &Context{
		resume:  make(chan resumeSignal),
		suspend: make(chan suspendSignal),
	}

	go func() {
		err := p.body(p.ctx, f)
		p.ctx.suspend <- suspendSignal{done: true, err: err}
	}()

	return p.awaitSuspendOrDone()
}

// Resume hands f to a suspended process and blocks until it suspends
// again or completes (spec.md §4.6 "Resume").
func (p *Process) Resume(f *frame.Frame) error {
	if p.state != StateSuspendedWaitingClock && p.state != StateSuspendedWaitingEvent && p.state != StateSuspendedWaitingBoth {
		return nil
	}
	p.state = StateRunning
	p.StopTimerHandle = timingwheel.NoHandle
	p.ctx.resume <- resumeSignal{frame: f}
	return p.awaitSuspendOrDone()
}

func (p *Process) awaitSuspendOrDone() error {
	sig := <-p.ctx.suspend
	if sig.done {
		p.state = StateDone
		return sig.err
	}
	if sig.waitClock {
		p.ResumeClockInterval = sig.clockIntervalTicks
	}
	switch {
	case sig.waitClock && sig.waitEvent:
		p.state = StateSuspendedWaitingBoth
	case sig.waitClock:
		p.state = StateSuspendedWaitingClock
	case sig.waitEvent:
		p.state = StateSuspendedWaitingEvent
	}
	return nil
}

// SignalEvent appends data to this process's per-type event queue and
// reports whether the process was suspended-waiting-event (and so should
// be placed on the dispatcher's ready list), per spec.md §4.6
// signal_event.
func (p *Process) SignalEvent(eventType uint32, data []byte) (resumePending bool) {
	p.events[eventType] = append(p.events[eventType], EventRecord{Type: eventType, Data: data})
	return p.state == StateSuspendedWaitingEvent || p.state == StateSuspendedWaitingBoth
}

// DrainEvents returns and clears every queued event of eventType, for the
// process body to consume after WaitForEvent returns.
func (p *Process) DrainEvents(eventType uint32) []EventRecord {
	evs := p.events[eventType]
	delete(p.events, eventType)
	return evs
}
