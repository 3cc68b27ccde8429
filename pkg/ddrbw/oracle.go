// Package ddrbw implements the DDR bandwidth oracle (spec §4.C): three
// sources in priority order (RDT/MBM, DDR PMU uncore counters, a one-off
// self-test burst used only to derive the target), unified behind one
// per-tick interface, plus the target-derivation rule and the
// reuse-last-value-then-disable-cap failure policy (spec §4 Failure
// semantics).
package ddrbw

import (
	"time"

	"github.com/zedulotech/dpftune/pkg/types"
)

// Source produces one aggregate memory-bandwidth reading per tick.
type Source interface {
	// Sample returns the aggregate bandwidth observed over the last dt.
	Sample(dt time.Duration) (types.MBPerSec, error)
	Close() error
}

// MaxConsecutiveFailures is K in "if unavailable for >K ticks, switch to
// bandwidth-cap-disabled mode" (spec §4 Failure semantics).
const MaxConsecutiveFailures = 5

// Cached wraps a Source with the reuse-last-known-value policy: a
// transient failure replays the previous reading; after more than
// MaxConsecutiveFailures in a row, Disabled becomes true and the tuner is
// expected to act on PMU counters alone.
type Cached struct {
	inner      Source
	last       types.MBPerSec
	failures   int
	hasReading bool
	Disabled   bool
}

// NewCached wraps inner with the cached/disable-on-persistent-failure policy.
func NewCached(inner Source) *Cached {
	return &Cached{inner: inner}
}

// Sample returns the inner source's reading, or the last known reading on a
// transient failure. Disabled is set once failures persist past the cap.
func (c *Cached) Sample(dt time.Duration) (types.MBPerSec, bool, error) {
	v, err := c.inner.Sample(dt)
	if err != nil {
		c.failures++
		if c.failures > MaxConsecutiveFailures {
			c.Disabled = true
		}
		if c.hasReading {
			return c.last, c.Disabled, err
		}
		return 0, c.Disabled, err
	}
	c.failures = 0
	c.Disabled = false
	c.last = v
	c.hasReading = true
	return v, false, nil
}

// Close releases the wrapped source.
func (c *Cached) Close() error { return c.inner.Close() }
