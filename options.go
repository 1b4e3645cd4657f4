package vpgraph

import "time"

// Config holds the enumerated runtime knobs consumed by the core (spec.md
// §6). The CLI/config parser that turns operator text into a Config is an
// explicit non-goal — this package only exposes typed option constructors
// for the collaborator to call once it has parsed `heapsize <n>[mMgG]`,
// `main-core <n>`, `elog-events <n>`, etc.
type Config struct {
	// HeapSize is the total main-heap reservation in bytes (`heapsize`).
	// It is advisory here: Go does not take a fixed reservation, but the
	// value is surfaced so a collaborator can set GOMEMLIMIT from it.
	HeapSize uint64

	// MainCore is the CPU index the main worker should be pinned to
	// (`main-core`), or -1 for "don't pin".
	MainCore int

	// ElogEvents is the event-log ring capacity (`elog-events`).
	ElogEvents int

	// ElogPostMortemDump enables dumping the event log to
	// /tmp/elog_post_mortem.<pid> on fatal exit (`elog-post-mortem-dump`).
	ElogPostMortemDump bool

	// PollingThreshold is the vector count above which an interrupt-mode
	// node switches to polling (default 10).
	PollingThreshold uint32

	// InterruptThreshold is the vector count at or below which a
	// polling-mode node with the may-return-to-interrupt flag begins the
	// one-shot transition back to interrupt (default 5).
	InterruptThreshold uint32

	// BarrierTimeout bounds how long the main thread waits for all
	// workers to reach a barrier rendezvous before logging a diagnostic
	// and continuing.
	BarrierTimeout time.Duration
}

// DefaultConfig returns a Config populated with the specification's
// documented defaults.
func DefaultConfig() Config {
	return Config{
		MainCore:           -1,
		ElogEvents:         128 * 1024,
		PollingThreshold:   10,
		InterruptThreshold: 5,
		BarrierTimeout:     time.Second,
	}
}

// Option mutates a Config. Options compose the same way as the teacher's
// LoopOption: each With... constructor returns a small closure-backed
// value applied in order by Apply.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithHeapSize sets Config.HeapSize.
func WithHeapSize(bytes uint64) Option {
	return optionFunc(func(c *Config) { c.HeapSize = bytes })
}

// WithMainCore pins the main worker to the given CPU index.
func WithMainCore(core int) Option {
	return optionFunc(func(c *Config) { c.MainCore = core })
}

// WithElogEvents sets the event-log ring capacity.
func WithElogEvents(n int) Option {
	return optionFunc(func(c *Config) { c.ElogEvents = n })
}

// WithElogPostMortemDump enables or disables the post-mortem event-log dump.
func WithElogPostMortemDump(enabled bool) Option {
	return optionFunc(func(c *Config) { c.ElogPostMortemDump = enabled })
}

// WithModeSwitchThresholds sets the polling/interrupt mode-switch
// thresholds (spec.md §4.4). Both default to 10/5 when zero.
func WithModeSwitchThresholds(polling, interrupt uint32) Option {
	return optionFunc(func(c *Config) {
		c.PollingThreshold = polling
		c.InterruptThreshold = interrupt
	})
}

// WithBarrierTimeout sets the barrier rendezvous timeout.
func WithBarrierTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.BarrierTimeout = d })
}

// Apply applies opts over DefaultConfig and returns the result.
func Apply(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(&cfg)
	}
	return cfg
}
