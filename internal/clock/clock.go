// Package clock provides the injectable time source every long-lived
// engine component takes instead of calling time.Now directly, so tests
// can pin or fast-forward time deterministically (spec.md §8's checkpoint
// round-trip tests and the router's timeout bookkeeping both depend on
// this). Re-exports facebookgo/clock.Clock rather than reinventing the
// interface.
package clock

import (
	fbclock "github.com/facebookgo/clock"
)

// Clock is the time-source seam: Now, After, AfterFunc, Sleep, Tick,
// Ticker, and Timer, all swappable for a Mock in tests.
type Clock = fbclock.Clock

// New returns the real wall clock.
func New() Clock {
	return fbclock.New()
}

// Mock is a deterministic Clock for tests: Add/Set advance or pin time
// without sleeping, and fire any pending After/AfterFunc/Ticker callbacks
// whose deadline the advance crosses.
type Mock = fbclock.Mock

// NewMock returns a Mock pinned at the Unix epoch, matching
// facebookgo/clock's own NewMock default.
func NewMock() *Mock {
	return fbclock.NewMock()
}
