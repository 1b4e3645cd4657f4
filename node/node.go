// Package node implements the node registry and runtime (spec.md §4.4,
// component C4): node descriptors, per-type runtime vectors, dispatch
// state, call/return statistics, and the polling⇄interrupt mode-switch
// policy.
package node

import (
	"fmt"
	"time"

	"github.com/pktgraph/vpgraph/frame"
)

// Type is the node category a Node belongs to (spec.md §3).
type Type uint8

const (
	TypePreInput Type = iota
	TypeInput
	TypeInternal
	TypeProcess
	numTypes
)

func (t Type) String() string {
	switch t {
	case TypePreInput:
		return "pre-input"
	case TypeInput:
		return "input"
	case TypeInternal:
		return "internal"
	case TypeProcess:
		return "process"
	default:
		return "unknown"
	}
}

// State is a node's dispatch state (spec.md §3).
type State uint8

const (
	StateDisabled State = iota
	StatePolling
	StateInterrupt
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StatePolling:
		return "polling"
	case StateInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Flag bits controlling mode-switch behavior and other per-node options
// (spec.md §3 "mode-switch hints").
type Flag uint32

const (
	// FlagMayReturnToInterrupt allows a polling node whose vector rate has
	// dropped to transition back to interrupt mode (spec.md §4.4).
	FlagMayReturnToInterrupt Flag = 1 << iota
)

// Function is a node's packet-processing function: it receives the
// runtime it was dispatched against and the frame of packet indices (nil
// for pre-input/input nodes dispatched without a frame argument), and
// returns the number of vectors it produced downstream, plus an error to
// be prefixed with the node's path and propagated per spec.md §7.
type Function func(rt *Runtime, f *frame.Frame) (vectorsOut int, err error)

// Validator optionally validates a frame before a node's Function runs.
type Validator func(f *frame.Frame) error

// Node is an immutable-after-registration node descriptor (spec.md §3).
type Node struct {
	Index        int
	Path         string
	Type         Type
	Function     Function
	ScalarSize   int
	VectorSize   int
	Flags        Flag
	Validator    Validator
	ArcNames     []string // declared outgoing arc names, resolved post-registration
	Arcs         []int    // resolved runtime indices, same length as ArcNames
	ErrorStrings []string // optional error-string table (spec.md §6)

	runtimeIndex int // index into the per-type runtime vector
}

// RuntimeIndex returns the index of this node's Runtime within its type's
// runtime vector.
func (n *Node) RuntimeIndex() int { return n.runtimeIndex }

// SizeClass returns the frame.SizeClass this node's frames are shaped for.
func (n *Node) SizeClass() frame.SizeClass {
	return frame.SizeClass{ScalarSize: n.ScalarSize, VectorSize: n.VectorSize}
}

// Stats holds a node's call/return statistics (spec.md §4.4): cheap 32-bit
// "since last overflow" counters updated every dispatch, synced to 64-bit
// totals when any would wrap.
type Stats struct {
	callsSinceOverflow    uint32
	vectorsSinceOverflow  uint32
	suspendsSinceOverflow uint32
	clocksSinceOverflow   uint64 // clocks rarely wrap at 32 bits in practice; kept 64-bit

	Calls     uint64
	Vectors   uint64
	Clocks    uint64
	MaxClock  time.Duration
	Suspends  uint64
}

// record folds one dispatch's observations into the cheap counters,
// syncing to the 64-bit totals if any 32-bit counter would overflow.
func (s *Stats) record(vectors int, clock time.Duration, suspended bool) {
	const maxU32 = ^uint32(0)

	if s.callsSinceOverflow == maxU32 || s.vectorsSinceOverflow > maxU32-uint32(vectors) {
		s.sync()
	}
	s.callsSinceOverflow++
	s.vectorsSinceOverflow += uint32(vectors)
	if suspended {
		if s.suspendsSinceOverflow == maxU32 {
			s.sync()
		}
		s.suspendsSinceOverflow++
	}
	s.clocksSinceOverflow += uint64(clock)
	if clock > s.MaxClock {
		s.MaxClock = clock
	}
}

// sync flushes the 32-bit counters into the 64-bit totals and resets them.
func (s *Stats) sync() {
	s.Calls += uint64(s.callsSinceOverflow)
	s.Vectors += uint64(s.vectorsSinceOverflow)
	s.Suspends += uint64(s.suspendsSinceOverflow)
	s.Clocks += s.clocksSinceOverflow
	s.callsSinceOverflow = 0
	s.vectorsSinceOverflow = 0
	s.suspendsSinceOverflow = 0
	s.clocksSinceOverflow = 0
}

// Totals returns the fully-synced (calls, vectors, clocks, maxClock,
// suspends) statistics, flushing the cheap counters first.
func (s *Stats) Totals() (calls, vectors, suspends uint64, clocks time.Duration, maxClock time.Duration) {
	s.sync()
	return s.Calls, s.Vectors, s.Suspends, s.Clocks, s.MaxClock
}

// Runtime is the hot mirror of a Node used during dispatch (spec.md §3
// "Node runtime"): cached-next-index speculation target, since-last-
// overflow bookkeeping, and mode-switch transition flags, grouped in
// per-type vectors so the dispatcher iterates contiguous memory.
type Runtime struct {
	Node *Node

	State State

	// CachedNextIndex is the outgoing arc most packets took last time
	// (spec.md §4.2 speculative-enqueue protocol).
	CachedNextIndex int

	Stats Stats

	// switchFromPollingToInterruptPending implements the one-shot delay
	// required so a driver may re-arm interrupts before the node actually
	// stops being polled (spec.md §4.4).
	switchFromPollingToInterruptPending bool

	// consecutiveLowVectorDispatches counts polling dispatches at or below
	// the interrupt threshold, used to require "the required number of
	// consecutive dispatches" before arming the pending transition.
	consecutiveLowVectorDispatches int
}

// ModeSwitchPolicy applies spec.md §4.4's polling⇄interrupt transition
// rule after a dispatch of vectorCount vectors.
//
//   - interrupt-mode node whose vectorCount rises above pollingThreshold:
//     switches to polling immediately.
//   - polling-mode node (with FlagMayReturnToInterrupt) observing
//     vectorCount <= interruptThreshold: marks the one-shot pending
//     transition; on its *next* polling dispatch it actually switches to
//     interrupt. This delay lets a driver re-arm interrupts first.
func (rt *Runtime) ModeSwitchPolicy(vectorCount int, pollingThreshold, interruptThreshold uint32) {
	switch rt.State {
	case StateInterrupt:
		if uint32(vectorCount) > pollingThreshold {
			rt.State = StatePolling
			rt.switchFromPollingToInterruptPending = false
			rt.consecutiveLowVectorDispatches = 0
		}

	case StatePolling:
		if rt.switchFromPollingToInterruptPending {
			rt.State = StateInterrupt
			rt.switchFromPollingToInterruptPending = false
			rt.consecutiveLowVectorDispatches = 0
			return
		}
		if rt.Node.Flags&FlagMayReturnToInterrupt != 0 && uint32(vectorCount) <= interruptThreshold {
			rt.consecutiveLowVectorDispatches++
			rt.switchFromPollingToInterruptPending = true
		} else {
			rt.consecutiveLowVectorDispatches = 0
		}
	}
}

// Dispatch invokes the node's Function, recording statistics and applying
// the mode-switch policy. clockNow and clockSince let the dispatcher
// supply its own monotonic clock (used for timer-anchored tests).
func (rt *Runtime) Dispatch(f *frame.Frame, pollingThreshold, interruptThreshold uint32, before, after time.Time) (int, error) {
	if rt.Node.Validator != nil && f != nil {
		if err := rt.Node.Validator(f); err != nil {
			return 0, fmt.Errorf("%s: frame validation: %w", rt.Node.Path, err)
		}
	}

	vectors, err := rt.Node.Function(rt, f)
	clock := after.Sub(before)
	rt.Stats.record(vectors, clock, false)

	if rt.State != StateDisabled {
		rt.ModeSwitchPolicy(vectors, pollingThreshold, interruptThreshold)
	}

	if err != nil {
		return vectors, &pathError{path: rt.Node.Path, err: err}
	}
	return vectors, nil
}

type pathError struct {
	path string
	err  error
}

func (e *pathError) Error() string { return e.path + ": " + e.err.Error() }
func (e *pathError) Unwrap() error { return e.err }
