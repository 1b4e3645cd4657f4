//go:build !linux

package dispatch

// Poller is the portable fallback for non-Linux platforms: there is no
// epoll here, so interrupt-mode input nodes degrade to being dispatched
// every tick alongside polling nodes (spec.md §9 Non-goals explicitly
// scopes the portable fallback out of the polling/interrupt distinction's
// guarantees, but the Worker must still build and run).
type Poller struct{}

// NewPoller always succeeds on the fallback.
func NewPoller() (*Poller, error) { return &Poller{}, nil }

// Close is a no-op.
func (p *Poller) Close() error { return nil }

// RegisterFD is a no-op; interrupt-mode fds are never actually polled on
// this platform.
func (p *Poller) RegisterFD(fd int, runtimeIndex int) error { return nil }

// UnregisterFD is a no-op.
func (p *Poller) UnregisterFD(fd int) error { return nil }

// Wait always returns immediately with no ready fds.
func (p *Poller) Wait(timeoutMs int, out []int) ([]int, error) { return out, nil }
