// Package barrier implements the two-phase sample→decide rendezvous every
// tick passes through (spec §4.E): every enabled worker arrives, the
// primary worker waits for all arrivals, runs the tuner, then releases the
// module leads waiting on the other side.
//
// The default implementation busy-waits: tick interval is O(seconds),
// rendezvous skew is O(microseconds), and a parking primitive would add
// syscall latency without benefit (spec design note). Cond provides a
// condition-variable alternative for tests or environments that would
// rather not spin.
package barrier

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Barrier is the busy-wait rendezvous. The zero value is not usable; build
// with New.
type Barrier struct {
	n       int64
	counter atomic.Int64
}

// New returns a Barrier sized for n participants (spec: N = active_threads).
func New(n int) *Barrier {
	return &Barrier{n: int64(n)}
}

// Arrive records this worker's arrival for the current tick.
func (b *Barrier) Arrive() {
	b.counter.Add(1)
}

// WaitAllArrived busy-waits, the primary worker's role, until every
// participant has called Arrive this tick.
func (b *Barrier) WaitAllArrived() {
	for b.counter.Load() < b.n {
		runtime.Gosched()
	}
}

// Release is called by the primary worker once the decision phase has run;
// it resets the arrival counter, which module leads observe as permission
// to proceed to their apply phase.
func (b *Barrier) Release() {
	b.counter.Store(0)
}

// WaitForRelease busy-waits, a non-primary module lead's role, until the
// primary calls Release for the tick this worker already Arrive()d in.
func (b *Barrier) WaitForRelease() {
	for b.counter.Load() != 0 {
		runtime.Gosched()
	}
}

// Cond is a condition-variable rendezvous with the same two-phase contract
// as Barrier, for callers that prefer parking over spinning (spec §9: "An
// implementer may substitute a barrier/condvar primitive without behavioral
// change"). A generation counter lets any number of module leads observe a
// single Release without racing to consume it.
type Cond struct {
	mu         sync.Mutex
	cond       *sync.Cond
	n          int
	arrived    int
	generation uint64
}

// NewCond returns a condvar-based rendezvous sized for n participants.
func NewCond(n int) *Cond {
	c := &Cond{n: n}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Arrive records this worker's arrival and wakes anyone waiting on it.
// It returns the generation to pass to WaitForRelease.
func (c *Cond) Arrive() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrived++
	gen := c.generation
	c.cond.Broadcast()
	return gen
}

// WaitAllArrived blocks, the primary's role, until every participant has
// arrived this tick.
func (c *Cond) WaitAllArrived() {
	c.mu.Lock()
	for c.arrived < c.n {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// Release resets the arrival count, advances the generation, and wakes any
// module leads parked in WaitForRelease.
func (c *Cond) Release() {
	c.mu.Lock()
	c.arrived = 0
	c.generation++
	c.cond.Broadcast()
	c.mu.Unlock()
}

// WaitForRelease blocks, a non-primary module lead's role, until a Release
// has advanced the generation past the one observed at Arrive.
func (c *Cond) WaitForRelease(observedGeneration uint64) {
	c.mu.Lock()
	for c.generation == observedGeneration {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
