// Package worker implements the core-worker pool (spec §4.D): one pinned
// execution context per monitored logical CPU, running sample→sync→apply
// every tick, synchronized through pkg/barrier and driven by whichever
// pkg/tuner implementation the run configuration selects.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jmhodges/clock"
	"github.com/sourcegraph/conc"

	"github.com/zedulotech/dpftune/pkg/barrier"
	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/ddrbw"
	"github.com/zedulotech/dpftune/pkg/errs"
	"github.com/zedulotech/dpftune/pkg/logging"
	"github.com/zedulotech/dpftune/pkg/metrics"
	"github.com/zedulotech/dpftune/pkg/msr"
	"github.com/zedulotech/dpftune/pkg/numeric"
	"github.com/zedulotech/dpftune/pkg/pmu"
	"github.com/zedulotech/dpftune/pkg/stats"
	"github.com/zedulotech/dpftune/pkg/tuner"
	"github.com/zedulotech/dpftune/pkg/types"
)

// Pool runs one goroutine per enabled core in shared, coordinated by a
// single Barrier rendezvous and a single Tuner decision per tick.
type Pool struct {
	Shared  *corestate.Shared
	Gateway msr.Gateway
	Tuner   tuner.Tuner
	Oracle  *ddrbw.Cached
	Clock   clock.Clock
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Stats   *stats.Accumulator

	// Pin controls whether workers call SchedSetaffinity; disabled in tests
	// that don't run with the privileges or topology pinning requires.
	Pin bool

	barrier     *barrier.Barrier
	restoreMu   atomic.Pointer[map[int]uint64]
	restoreOnce atomic.Bool
}

// New builds a Pool ready to Run. Oracle, Clock, Logger, Metrics, and Stats
// may be supplied by the caller; Metrics and Stats tolerate nil receivers.
func New(shared *corestate.Shared, gw msr.Gateway, t tuner.Tuner, oracle *ddrbw.Cached, clk clock.Clock, logger *logging.Logger) *Pool {
	p := &Pool{
		Shared:  shared,
		Gateway: gw,
		Tuner:   t,
		Oracle:  oracle,
		Clock:   clk,
		Logger:  logger,
		Pin:     true,
	}
	p.barrier = barrier.New(len(shared.EnabledCores()))
	empty := map[int]uint64{}
	p.restoreMu.Store(&empty)
	return p
}

// Run starts one goroutine per enabled core and blocks until ctx is
// cancelled or a worker panics, at which point every module lead's original
// MSR value is restored before Run returns (spec §4.D, Failure semantics).
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cores := p.Shared.EnabledCores()
	primaryCoreID := p.Shared.Config.CoreFirst

	wg := conc.NewWaitGroup()
	for _, c := range cores {
		c := c
		isPrimary := c.CoreID == primaryCoreID
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					if p.Logger != nil {
						p.Logger.Error("worker", "panic recovered, shutting down", "core", c.CoreID, "panic", r)
					}
					p.barrier.Arrive() // unblock the primary if we never reached our own Arrive
					cancel()
					panic(r)
				}
			}()
			p.runCore(ctx, c, isPrimary)
		})
	}

	err := waitCatchingPanics(wg)
	p.restoreAll()
	return err
}

func waitCatchingPanics(wg *conc.WaitGroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: %v", r)
		}
	}()
	wg.Wait()
	return nil
}

func (p *Pool) runCore(ctx context.Context, c *corestate.CoreState, isPrimary bool) {
	if p.Pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := pinToCore(c.CoreID); err != nil {
			panic(errs.WithStack(errs.PermissionDenied, err))
		}
	}

	handle, err := p.Gateway.Open(c.CoreID)
	if err != nil {
		panic(errs.WithStack(errs.PermissionDenied, err))
	}
	defer func() { _ = handle.Close() }()

	if c.IsModuleLead() {
		original, err := handle.Read(msr.AddrHWPrefetch)
		if err != nil {
			panic(errs.WithStack(errs.PermissionDenied, err))
		}
		p.recordOriginal(c.CoreID, original)
		if err := handle.Write(msr.AddrHWPrefetch, c.DesiredMSR); err != nil {
			panic(errs.WithStack(errs.PermissionDenied, err))
		}
	}
	if err := pmu.Configure(handle); err != nil {
		panic(errs.WithStack(errs.PermissionDenied, err))
	}

	interval := time.Duration(p.Shared.Config.TickInterval * float64(time.Second))
	ticker := p.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		p.sample(c, handle)
		p.barrier.Arrive()

		if isPrimary {
			p.barrier.WaitAllArrived()
			p.decide()
			p.barrier.Release()
		} else if c.IsModuleLead() {
			p.barrier.WaitForRelease()
		}

		if c.IsModuleLead() && c.MSRDirty {
			if err := handle.Write(msr.AddrHWPrefetch, c.DesiredMSR); err != nil {
				if p.Logger != nil {
					p.Logger.Warn("worker", "msr write failed, retrying next tick", "core", c.CoreID, "err", err)
				}
				continue
			}
			c.MSRDirty = false
		}
	}
}

// sample reads the PMU counters for one core and folds them into its
// deltas (spec §4.B, invariant 3: pmu_delta >= 0, treating a decrease as a
// counter reset).
func (p *Pool) sample(c *corestate.CoreState, handle msr.Handle) {
	counters, instr, cycles, err := pmu.Sample(handle)
	if err != nil {
		c.LastErr = err
		if p.Logger != nil {
			p.Logger.Warn("worker", "transient PMU read failure, treating this tick's delta as zero", "core", c.CoreID, "err", err)
		}
		for i := range c.PMUDelta {
			c.PMUDelta[i] = 0
		}
		c.InstrRetiredDelta = 0
		c.CPUCyclesDelta = 0
		return
	}
	c.LastErr = nil
	c.PMUPrev = c.PMUCurr
	c.PMUCurr = counters
	for i := range counters {
		c.PMUDelta[i] = numeric.DeltaU64(c.PMUCurr[i], c.PMUPrev[i])
	}
	c.InstrRetiredPrev, c.InstrRetiredCurr = c.InstrRetiredCurr, instr
	c.CPUCyclesPrev, c.CPUCyclesCurr = c.CPUCyclesCurr, cycles
	c.InstrRetiredDelta = numeric.DeltaU64(c.InstrRetiredCurr, c.InstrRetiredPrev)
	c.CPUCyclesDelta = numeric.DeltaU64(c.CPUCyclesCurr, c.CPUCyclesPrev)
}

// decide runs exactly once per tick, on the primary worker, while every
// other worker is suspended at the barrier (spec invariant 2).
func (p *Pool) decide() {
	dt := time.Duration(p.Shared.Config.TickInterval * float64(time.Second))

	bw, disabled := p.sampleBandwidth(dt)

	if err := p.Tuner.Decide(p.Shared, bw, disabled); err != nil && p.Logger != nil {
		p.Logger.Error("tuner", "decision failed", "err", err)
	}

	if p.Stats != nil || p.Metrics != nil {
		instr, cycles := p.Shared.SumInstrCycles()
		ipc := numeric.SafeDiv(float64(instr), float64(cycles))
		level, arm := -1, -1
		if bt, ok := p.Tuner.(*tuner.Basic); ok {
			level = bt.Level()
		}
		if mt, ok := p.Tuner.(*tuner.MAB); ok {
			arm = mt.ChosenArm()
		}
		dirty := false
		for _, lead := range p.Shared.ModuleLeads() {
			dirty = dirty || lead.MSRDirty
		}
		if p.Stats != nil {
			p.Stats.Apply(stats.Tick{Bandwidth: bw, IPC: ipc, Level: level, Arm: arm, Dirty: dirty})
		}
		p.Metrics.ObserveTick(bw, ipc, level, arm, dirty)
	}
}

// sampleBandwidth returns the latest bandwidth reading and whether the
// oracle has crossed ddrbw.MaxConsecutiveFailures consecutive failures
// (spec §4 failure semantics, "bandwidth cap disabled" mode). Callers must
// not act on v's headroom when disabled is true; it is a stale, frozen
// reading kept only for display/metrics continuity.
func (p *Pool) sampleBandwidth(dt time.Duration) (v types.MBPerSec, disabled bool) {
	if p.Oracle == nil {
		return 0, false
	}
	v, disabled, err := p.Oracle.Sample(dt)
	p.Metrics.SetOracleDisabled(disabled)
	if err != nil && p.Logger != nil {
		p.Logger.Warn("ddrbw", "oracle read failed, reusing last known bandwidth", "err", err)
	}
	return v, disabled
}

func (p *Pool) recordOriginal(coreID int, value uint64) {
	for {
		old := p.restoreMu.Load()
		next := make(map[int]uint64, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[coreID] = value
		if p.restoreMu.CompareAndSwap(old, &next) {
			return
		}
	}
}

// restoreAll writes each module lead's captured original MSR value exactly
// once, on shutdown (spec §4.D "restore", invariant/testable property 5).
func (p *Pool) restoreAll() {
	if !p.restoreOnce.CompareAndSwap(false, true) {
		return
	}
	snapshot := *p.restoreMu.Load()
	for _, lead := range p.Shared.ModuleLeads() {
		original, ok := snapshot[lead.CoreID]
		if !ok {
			continue
		}
		handle, err := p.Gateway.Open(lead.CoreID)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Error("worker", "restore: reopen failed", "core", lead.CoreID, "err", err)
			}
			continue
		}
		if err := handle.Write(msr.AddrHWPrefetch, original); err != nil && p.Logger != nil {
			p.Logger.Error("worker", "restore: write failed", "core", lead.CoreID, "err", err)
		}
		_ = handle.Close()
	}
}
