package dispatch

// Config holds the dispatch-tunable parameters a Worker needs, mirroring
// the relevant subset of the top-level Config (spec.md §4.4 mode-switch
// thresholds).
type Config struct {
	PollingThreshold   uint32
	InterruptThreshold uint32
}
