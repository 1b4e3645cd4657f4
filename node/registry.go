package node

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Registry owns every registered Node once, and the per-type Runtime
// vectors the dispatcher iterates during a tick (spec.md §4.4: "per-type
// runtime vectors store compact copies used by the hot loop").
//
// A Registry is built up via Register calls (spec.md §6 node-registration
// contract) and finalized with ResolveArcs once every node that will ever
// be registered has been. Registration errors (duplicate path) are
// spec.md §7 "Configuration error": the offending registration is
// rejected and loading continues.
type Registry struct {
	byPath   map[string]int
	nodes    []*Node
	runtimes [numTypes][]*Runtime

	// modeSwitchLimiter throttles the structured-logging side effect of
	// frequent polling⇄interrupt transitions, so a node flapping at the
	// threshold boundary doesn't flood the log. This is the same
	// catrate.Limiter the teacher's dependency graph already pulls in
	// (transitively, via logiface); here it's given an explicit job.
	modeSwitchLimiter *catrate.Limiter
}

// NewRegistry constructs an empty Registry. logRate bounds mode-switch log
// emissions per node path to at most one per logRate window.
func NewRegistry(logRate time.Duration) *Registry {
	if logRate <= 0 {
		logRate = time.Second
	}
	return &Registry{
		byPath: make(map[string]int),
		modeSwitchLimiter: catrate.NewLimiter(map[time.Duration]int{
			logRate: 1,
		}),
	}
}

// Register adds a node, assigning its Index and runtime index and
// appending a fresh Runtime to the appropriate per-type vector. Arc names
// are resolved later, via ResolveArcs, since later-registered nodes may be
// the targets.
func (r *Registry) Register(n *Node) (*Node, error) {
	if _, exists := r.byPath[n.Path]; exists {
		return nil, fmt.Errorf("%w: %s", errDuplicatePath, n.Path)
	}
	if n.Type >= numTypes {
		return nil, fmt.Errorf("node: invalid type for %s", n.Path)
	}

	n.Index = len(r.nodes)
	n.runtimeIndex = len(r.runtimes[n.Type])
	n.Arcs = make([]int, len(n.ArcNames))
	for i := range n.Arcs {
		n.Arcs[i] = -1
	}

	rt := &Runtime{Node: n, State: n.initialState()}
	r.runtimes[n.Type] = append(r.runtimes[n.Type], rt)
	r.nodes = append(r.nodes, n)
	r.byPath[n.Path] = n.Index

	return n, nil
}

// initialState defaults process nodes and process-less internal nodes to
// polling, per spec.md §4.4's "disabled → polling/interrupt: administrative"
// — the actual initial state is whatever the collaborator set on Node
// before calling Register (0 value is StateDisabled), so this just
// preserves it.
func (n *Node) initialState() State { return 0 }

var errDuplicatePath = fmt.Errorf("vpgraph/node: duplicate node path")

// ResolveArcs resolves every node's declared outgoing ArcNames to node
// indices, once all nodes that will ever be registered have been. Unknown
// arc names are a configuration error; the affected node's Arcs entry is
// left at -1 and an error is returned (aggregating all unresolved arcs),
// but resolution of other arcs still proceeds.
func (r *Registry) ResolveArcs() error {
	var unresolved []string
	for _, n := range r.nodes {
		for i, name := range n.ArcNames {
			target, ok := r.byPath[name]
			if !ok {
				unresolved = append(unresolved, n.Path+" -> "+name)
				continue
			}
			n.Arcs[i] = target
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("vpgraph/node: unresolved arcs: %v", unresolved)
	}
	return nil
}

// ByPath looks up a node by its registered path name.
func (r *Registry) ByPath(path string) (*Node, bool) {
	idx, ok := r.byPath[path]
	if !ok {
		return nil, false
	}
	return r.nodes[idx], true
}

// Node returns the node at index idx.
func (r *Registry) Node(idx int) *Node { return r.nodes[idx] }

// Runtime returns the Runtime for node idx.
func (r *Registry) Runtime(idx int) *Runtime {
	n := r.nodes[idx]
	return r.runtimes[n.Type][n.runtimeIndex]
}

// RuntimesOfType returns the per-type runtime vector for t, in registration
// order, for the dispatcher to iterate contiguously (spec.md §4.4).
func (r *Registry) RuntimesOfType(t Type) []*Runtime { return r.runtimes[t] }

// Len returns the total number of registered nodes.
func (r *Registry) Len() int { return len(r.nodes) }

// NoteModeSwitch logs (at most once per the configured rate, per node
// path) that rt transitioned to its current State. Returns whether the
// event was actually logged (for tests).
func (r *Registry) NoteModeSwitch(rt *Runtime) bool {
	_, allowed := r.modeSwitchLimiter.Allow(rt.Node.Path)
	return allowed
}

// SetState administratively transitions a node between disabled, polling,
// and interrupt (spec.md §4.4 "disabled → polling/interrupt: administrative").
func (r *Registry) SetState(idx int, s State) {
	r.Runtime(idx).State = s
}
