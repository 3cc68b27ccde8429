package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrierOneTick(t *testing.T) {
	const n = 4
	b := New(n)

	var decided atomic.Bool
	var wg sync.WaitGroup
	wg.Add(n)

	// worker 0 is primary, worker 1 is a module lead, 2 and 3 are
	// non-lead cores that never wait for release.
	applied := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			b.Arrive()
			switch {
			case i == 0:
				b.WaitAllArrived()
				decided.Store(true)
				b.Release()
			case i == 1:
				b.WaitForRelease()
			}
			applied[i] = decided.Load() || i >= 2
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier deadlocked")
	}

	for i, ok := range applied {
		assert.True(t, ok, "worker %d should observe decision complete", i)
	}
}

func TestBarrierReusableAcrossTicks(t *testing.T) {
	const n = 2
	b := New(n)
	for tick := 0; tick < 5; tick++ {
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			i := i
			go func() {
				defer wg.Done()
				b.Arrive()
				if i == 0 {
					b.WaitAllArrived()
					b.Release()
				} else {
					b.WaitForRelease()
				}
			}()
		}
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("tick %d deadlocked", tick)
		}
	}
}

func TestCondOneTick(t *testing.T) {
	const n = 3
	c := NewCond(n)
	var wg sync.WaitGroup
	wg.Add(n)
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			gen := c.Arrive()
			if i == 0 {
				c.WaitAllArrived()
				c.Release()
				results[i] = true
			} else {
				c.WaitForRelease(gen)
				results[i] = true
			}
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cond barrier deadlocked")
	}
	for i, ok := range results {
		assert.True(t, ok, "worker %d should complete", i)
	}
}

func TestCondMultipleGenerations(t *testing.T) {
	c := NewCond(1)
	gen0 := c.Arrive()
	require.Equal(t, uint64(0), gen0)
	c.Release()

	done := make(chan struct{})
	go func() {
		c.WaitForRelease(gen0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter on stale generation should unblock immediately")
	}
}
