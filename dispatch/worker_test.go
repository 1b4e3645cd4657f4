package dispatch

import (
	"testing"
	"time"

	"github.com/pktgraph/vpgraph/frame"
	"github.com/pktgraph/vpgraph/nextframe"
	"github.com/pktgraph/vpgraph/node"
	"github.com/pktgraph/vpgraph/pending"
	"github.com/pktgraph/vpgraph/process"
	"github.com/pktgraph/vpgraph/timingwheel"
	"github.com/pktgraph/vpgraph/vpglog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*Worker, *node.Registry, *frame.Pool) {
	t.Helper()
	reg := node.NewRegistry(time.Second)
	pool := frame.NewPool(false)
	pq := pending.NewQueue()
	table := nextframe.NewTable(pool, pq)
	poller, err := NewPoller()
	require.NoError(t, err)
	barrier := NewBarrier(0)

	w := NewWorker(0, true, Config{PollingThreshold: 10, InterruptThreshold: 5}, reg, pool, table, pq, poller, barrier, vpglog.NoOp())
	return w, reg, pool
}

func TestWorker_Tick_DispatchesPreInputNode(t *testing.T) {
	w, reg, _ := newTestWorker(t)
	calls := 0
	gen, err := reg.Register(&node.Node{
		Path: "gen", Type: node.TypePreInput,
		Function: func(rt *node.Runtime, f *frame.Frame) (int, error) {
			calls++
			return 1, nil
		},
	})
	require.NoError(t, err)
	reg.SetState(gen.Index, node.StatePolling)
	require.NoError(t, reg.ResolveArcs())

	require.NoError(t, w.Tick(time.Now()))
	assert.Equal(t, 1, calls)
}

func TestWorker_Tick_WalksPendingQueueAndDispatchesTarget(t *testing.T) {
	w, reg, pool := newTestWorker(t)
	var seenVectors int
	target, err := reg.Register(&node.Node{
		Path: "echo", Type: node.TypeInternal, VectorSize: 4,
		Function: func(rt *node.Runtime, f *frame.Frame) (int, error) {
			seenVectors = f.NVectors
			return f.NVectors, nil
		},
	})
	require.NoError(t, err)
	require.NoError(t, reg.ResolveArcs())

	sc := frame.SizeClass{VectorSize: 4}
	idx := pool.Alloc(sc)
	f := pool.Get(idx)
	f.Append(1)
	f.Append(2)

	w.Pending.Push(pending.Record{TargetRuntimeIndex: target.Index, Frame: idx, NextFrameIndex: pending.NoNextFrame})

	require.NoError(t, w.Tick(time.Now()))
	assert.Equal(t, 2, seenVectors)
}

func TestWorker_DispatchProcesses_StartsRegisteredProcessOnce(t *testing.T) {
	w, _, _ := newTestWorker(t)
	starts := 0
	p := process.NewProcess(0, "proc", func(ctx *process.Context, f *frame.Frame) error {
		starts++
		return nil
	})
	w.Processes[0] = p

	require.NoError(t, w.Tick(time.Now()))
	require.NoError(t, w.Tick(time.Now()))

	assert.Equal(t, 1, starts, "a process that already ran to completion must not be started again")
	assert.Equal(t, process.StateDone, p.State())
}

// TestWorker_ClockSuspend_ArmsWheelAndResumesAfterExpiry exercises spec.md
// §8 scenario 5 end to end: a process suspends waiting for the clock, the
// dispatcher arms a timing-wheel entry for the requested interval (not the
// process itself), and the process resumes only once the wheel has
// advanced that far.
func TestWorker_ClockSuspend_ArmsWheelAndResumesAfterExpiry(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.Wheel = timingwheel.NewWheel(100, 11) // maxExpirations=100 per call, so draining the full 500-tick wait takes several calls, making the "not yet" assertions meaningful regardless of wall-clock value.

	resumed := make(chan struct{})
	p := process.NewProcess(0, "sleeper", func(ctx *process.Context, f *frame.Frame) error {
		ctx.WaitForClock(500) // 5ms at 10us/tick granularity
		close(resumed)
		return nil
	})
	w.Processes[0] = p

	w.dispatchProcesses()
	require.Equal(t, process.StateSuspendedWaitingClock, p.State())
	require.NotEqual(t, timingwheel.NoHandle, p.StopTimerHandle, "dispatcher must arm a wheel entry for the clock wait")

	for i := 0; i < 4; i++ {
		w.expireTimers(time.Now())
		select {
		case <-resumed:
			t.Fatalf("resumed after only %d/500 ticks", (i+1)*100)
		default:
		}
	}

	w.expireTimers(time.Now())
	select {
	case <-resumed:
	default:
		t.Fatal("process was never resumed after its clock interval expired")
	}
	assert.Equal(t, process.StateDone, p.State())
}

// TestWorker_SignalTimedEvent_DeliversAfterExpiryAndResumesWaiter exercises
// the signal_timed_event path of spec.md §4.6/§4.5 step 8: the record
// materializes into the target's event queue and frees once its wheel
// entry matures, and the process (suspended-waiting-event) is placed on
// the ready list rather than resumed inline, per step 8's distinction
// between a timed-event handle and a suspended-process handle.
func TestWorker_SignalTimedEvent_DeliversAfterExpiryAndResumesWaiter(t *testing.T) {
	w, _, _ := newTestWorker(t)
	w.Wheel = timingwheel.NewWheel(100, 11)

	done := make(chan struct{})
	p := process.NewProcess(1, "waiter", func(ctx *process.Context, f *frame.Frame) error {
		ctx.WaitForEvent()
		close(done)
		return nil
	})
	w.Processes[1] = p
	w.dispatchProcesses()
	require.Equal(t, process.StateSuspendedWaitingEvent, p.State())

	w.SignalTimedEvent(p, 7, 300, []byte("payload"))

	for i := 0; i < 2; i++ {
		w.expireTimers(time.Now())
	}
	select {
	case <-done:
		t.Fatal("resumed before its timed event matured")
	default:
	}

	w.expireTimers(time.Now()) // matures the record, materializes the event, marks p ready
	w.dispatchProcesses()      // drains the ready list, actually resuming p

	select {
	case <-done:
	default:
		t.Fatal("process was never resumed after its timed event matured")
	}
	evs := p.DrainEvents(7)
	require.Len(t, evs, 1)
	assert.Equal(t, []byte("payload"), evs[0].Data)
}

func TestBarrier_RaiseReleasesAfterCheckpoints(t *testing.T) {
	b := NewBarrier(1)
	assert.True(t, b.CheckPoint().IsZero(), "no barrier requested: CheckPoint must not block")

	releaseTime := time.Now()
	var failed int
	raiseDone := make(chan struct{})
	go func() {
		failed = b.Raise(time.Second, releaseTime)
		close(raiseDone)
	}()

	// Give Raise a moment to set the requested flag before checkpointing.
	time.Sleep(10 * time.Millisecond)
	got := b.CheckPoint()

	<-raiseDone
	assert.Zero(t, failed)
	assert.True(t, got.Equal(releaseTime))
}
