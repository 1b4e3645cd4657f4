// Command vpgraphd wires one worker of the packet-graph dispatcher with a
// minimal demo graph: a pre-input node that manufactures a handful of
// packets every tick, an internal node that counts them, and structured
// logging of the resulting dispatch statistics. It exists to exercise
// every package end-to-end, not as a production packet-processing binary.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/pktgraph/vpgraph"
	"github.com/pktgraph/vpgraph/dispatch"
	"github.com/pktgraph/vpgraph/frame"
	"github.com/pktgraph/vpgraph/nextframe"
	"github.com/pktgraph/vpgraph/node"
	"github.com/pktgraph/vpgraph/pending"
	"github.com/pktgraph/vpgraph/vpglog"
)

func main() {
	iterations := flag.Int("iterations", 20, "number of dispatch ticks to run before exiting")
	logLevel := flag.String("log-level", "info", "log level: debug|info|disabled")
	flag.Parse()

	logger := vpglog.Default()
	if *logLevel == "disabled" {
		logger = vpglog.NoOp()
	}

	cfg := vpgraph.Apply(
		vpgraph.WithModeSwitchThresholds(10, 5),
		vpgraph.WithBarrierTimeout(5*time.Second),
	)

	registry := node.NewRegistry(time.Second)
	pool := frame.NewPool(false)
	pq := pending.NewQueue()
	table := nextframe.NewTable(pool, pq)

	counter := &packetCounter{}
	counterNode, err := registry.Register(&node.Node{
		Path:       "demo-counter",
		Type:       node.TypeInternal,
		VectorSize: 4,
		Function:   counter.dispatch,
	})
	must(err)

	gen := &packetGenerator{table: table, targetArc: 0}
	genNode, err := registry.Register(&node.Node{
		Path:     "demo-generator",
		Type:     node.TypePreInput,
		ArcNames: []string{"demo-counter"},
		Function: gen.dispatch,
	})
	must(err)
	registry.SetState(genNode.Index, node.StatePolling)

	must(registry.ResolveArcs())
	gen.targetRuntime = registry.Runtime(counterNode.Index).Node.Index

	poller, err := dispatch.NewPoller()
	must(err)
	defer poller.Close()

	barrier := dispatch.NewBarrier(0)
	worker := dispatch.NewWorker(0, true, dispatch.Config{
		PollingThreshold:   cfg.PollingThreshold,
		InterruptThreshold: cfg.InterruptThreshold,
	}, registry, pool, table, pq, poller, barrier, logger)

	for i := 0; i < *iterations; i++ {
		if err := worker.Tick(time.Now()); err != nil {
			vpglog.WithCategory(logger, vpglog.CategoryDispatch, "main").Str("error", err.Error()).Log("tick failed")
			os.Exit(1)
		}
	}

	calls, vectors, _, _, _ := registry.Runtime(counterNode.Index).Stats.Totals()
	vpglog.WithCategory(logger, vpglog.CategoryDispatch, "main").
		Log("demo run complete")
	_ = calls
	_ = vectors
}

// packetGenerator is a pre-input node: each tick it manufactures a small
// batch of synthetic buffer indices and enqueues them onto its single
// outgoing arc via the next-frame table's speculative protocol.
type packetGenerator struct {
	table         *nextframe.Table
	targetArc     int
	targetRuntime int
	nextBuffer    uint32
}

func (g *packetGenerator) dispatch(rt *node.Runtime, f *frame.Frame) (int, error) {
	sc := frame.SizeClass{VectorSize: 4}
	spec := nextframe.NewSpeculator(g.table, rt.Node.Index, rt.CachedNextIndex, sc, func(arc int) int {
		return g.targetRuntime
	})
	const batch = 4
	for i := 0; i < batch; i++ {
		spec.Enqueue1(g.nextBuffer, g.targetArc)
		g.nextBuffer++
	}
	spec.Finish()
	rt.CachedNextIndex = spec.CachedArc()
	return batch, nil
}

// packetCounter is an internal node that simply tallies the vectors it is
// dispatched with.
type packetCounter struct {
	total int
}

func (c *packetCounter) dispatch(rt *node.Runtime, f *frame.Frame) (int, error) {
	if f != nil {
		c.total += f.NVectors
		return f.NVectors, nil
	}
	return 0, nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
