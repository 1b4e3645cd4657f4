// Package vpglog wires the dispatcher's ambient structured logging, using
// github.com/joeycumines/logiface as the facade and
// github.com/joeycumines/stumpy as its zero-allocation JSON backend — the
// same pairing exercised by the teacher's own logiface test suite.
//
// Every subsystem that logs (node dispatch, the timing wheel, the handoff
// ring, the barrier) takes a *Logger and tags entries with one of the
// Category constants, mirroring the "timer"/"promise"/"microtask" category
// convention the teacher's hand-rolled logging.go used before this package
// replaced it with a real structured-logging dependency.
package vpglog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Category names the subsystem that produced a log entry.
type Category string

const (
	CategoryNode     Category = "node"
	CategoryTimer    Category = "timer"
	CategoryHandoff  Category = "handoff"
	CategoryBarrier  Category = "barrier"
	CategoryProcess  Category = "process"
	CategoryCapture  Category = "capture"
	CategoryDispatch Category = "dispatch"
)

// Logger is the structured logger threaded through every component.
type Logger = logiface.Logger[*stumpy.Event]

// New builds a Logger writing newline-delimited JSON to w, at minimum
// level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(w),
		stumpy.L.WithLevel(level),
	)
}

// Default returns a Logger writing to os.Stderr at LevelInfo, suitable for
// a collaborator that hasn't configured logging explicitly.
func Default() *Logger {
	return New(os.Stderr, logiface.LevelInformational)
}

// NoOp returns a Logger with logging disabled, for tests and benchmarks
// where structured-logging overhead is undesirable.
func NoOp() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}

// WithCategory returns a builder for an informational event tagged with
// category and node/component name.
func WithCategory(l *Logger, category Category, name string) *logiface.Builder[*stumpy.Event] {
	return l.Info().Str("category", string(category)).Str("name", name)
}
