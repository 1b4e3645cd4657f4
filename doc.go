// Package vpgraph implements the core of a vector packet-processing
// dispatcher: a directed graph of processing nodes through which packets
// flow in batches ("frames") to amortize per-packet overhead across
// instruction-cache-hot code paths.
//
// # Architecture
//
// A [dispatch.Worker] runs one independent copy of the dispatch loop per
// core. Each tick: pre-input nodes run, then input nodes (both polling
// and interrupt-woken), then the pending-frame queue is walked to
// completion, then (main worker only) the timing wheel is advanced,
// waking suspended [process.Process] nodes and delivering timed events.
//
// Packets accumulate in frames ([frame.Frame]) owned by per-(node, arc)
// next-frame slots ([nextframe.Table]); a full frame becomes a pending
// record ([pending.Queue]) awaiting dispatch into its target node.
// Cross-worker movement goes through a lock-minimal SPSC ring
// ([handoff.Ring]).
//
// # Platform Support
//
// Interrupt-mode I/O readiness uses platform-native mechanisms:
//   - Linux: epoll
//   - other platforms: a portable channel-based fallback
//
// # Thread Safety
//
// Each [dispatch.Worker] is single-threaded internally: node functions
// run to completion except for [process.Process] nodes, which may
// cooperatively suspend. The only state shared between workers is the
// handoff ring (§C8) and the barrier (§5 of the specification this
// package implements).
package vpgraph
