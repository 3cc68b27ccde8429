package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/ddrbw"
	"github.com/zedulotech/dpftune/pkg/msr"
	"github.com/zedulotech/dpftune/pkg/pmu"
	"github.com/zedulotech/dpftune/pkg/stats"
	"github.com/zedulotech/dpftune/pkg/tuner"
	"github.com/zedulotech/dpftune/pkg/types"
)

// alwaysFailingSource simulates a bandwidth oracle that never recovers, to
// drive ddrbw.Cached past MaxConsecutiveFailures.
type alwaysFailingSource struct{}

func (alwaysFailingSource) Sample(time.Duration) (types.MBPerSec, error) {
	return 0, errors.New("oracle unavailable")
}

func (alwaysFailingSource) Close() error { return nil }

func newTestShared() *corestate.Shared {
	cfg := corestate.GlobalConfig{
		CoreFirst:      8,
		CoreLast:       11,
		TickInterval:   0.002,
		Aggressiveness: 1.0,
		DDRBWTarget:    20000,
		TuneAlg:        corestate.Basic0,
		Priority:       []int{50, 50, 50, 50},
	}
	return corestate.NewShared(cfg)
}

func TestPoolSampleUpdatesDeltasAndTreatsDecreaseAsReset(t *testing.T) {
	shared := newTestShared()
	gw := msr.NewFakeGateway()
	p := New(shared, gw, tuner.NewBasic(corestate.Basic0, 1.0, tuner.DefaultLevelTable), nil, clock.New(), nil)

	c := shared.Cores[0]
	h := gw.Handle(c.CoreID)
	if h == nil {
		handle, err := gw.Open(c.CoreID)
		require.NoError(t, err)
		h = handle.(*msr.FakeHandle)
	}
	h.SetCounter(msr.AddrCounterBase+pmu.CounterAllLoads, 1000)
	h.SetCounter(msr.AddrFixedInstrRetired, 5000)
	h.SetCounter(msr.AddrFixedCycles, 10000)

	handle, err := gw.Open(c.CoreID)
	require.NoError(t, err)

	p.sample(c, handle)
	require.Equal(t, uint64(1000), c.PMUDelta[pmu.CounterAllLoads])
	require.Equal(t, uint64(5000), c.InstrRetiredDelta)

	// Apparent decrease treated as a reset (spec invariant 3).
	h.SetCounter(msr.AddrCounterBase+pmu.CounterAllLoads, 500)
	p.sample(c, handle)
	require.Equal(t, uint64(0), c.PMUDelta[pmu.CounterAllLoads])
}

func TestPoolDecideAppliesTunerAndRecordsStats(t *testing.T) {
	shared := newTestShared()
	gw := msr.NewFakeGateway()
	bt := tuner.NewBasic(corestate.Basic0, 1.0, tuner.DefaultLevelTable)
	acc := stats.New()
	p := New(shared, gw, bt, nil, clock.New(), nil)
	p.Stats = acc

	p.decide()

	summary := acc.Summarize()
	require.Equal(t, 1, summary.Ticks)
	for _, lead := range shared.ModuleLeads() {
		require.True(t, lead.MSRDirty)
	}
}

func TestPoolRestoreAllWritesOriginalExactlyOnce(t *testing.T) {
	shared := newTestShared()
	gw := msr.NewFakeGateway()
	p := New(shared, gw, tuner.NewBasic(corestate.Basic0, 1.0, tuner.DefaultLevelTable), nil, clock.New(), nil)

	lead := shared.ModuleLeads()[0]
	handle, err := gw.Open(lead.CoreID)
	require.NoError(t, err)
	require.NoError(t, handle.Write(msr.AddrHWPrefetch, 0xdeadbeef))

	p.recordOriginal(lead.CoreID, 0xdeadbeef)
	// Mutate the register to simulate tuning having moved it.
	require.NoError(t, handle.Write(msr.AddrHWPrefetch, 0x1))

	p.restoreAll()
	v, err := handle.Read(msr.AddrHWPrefetch)
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), v)

	// A second call is a no-op (restoreOnce).
	require.NoError(t, handle.Write(msr.AddrHWPrefetch, 0x2))
	p.restoreAll()
	v, err = handle.Read(msr.AddrHWPrefetch)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2), v)
}

func TestPoolRunEndToEndAppliesAndRestoresMSR(t *testing.T) {
	shared := newTestShared()
	gw := msr.NewFakeGateway()
	bt := tuner.NewBasic(corestate.Basic0, 1.0, tuner.DefaultLevelTable)
	p := New(shared, gw, bt, nil, clock.New(), nil)
	p.Pin = false

	// Seed each module lead's register with a "factory default" value
	// before Run starts, so recordOriginal captures it and restoreAll's
	// write-back is observable against it.
	for _, lead := range shared.ModuleLeads() {
		handle, err := gw.Open(lead.CoreID)
		require.NoError(t, err)
		require.NoError(t, handle.Write(msr.AddrHWPrefetch, 0xABCD))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool.Run did not return after cancellation")
	}

	for _, lead := range shared.ModuleLeads() {
		h := gw.Handle(lead.CoreID)
		require.NotNil(t, h)
		v, err := h.Read(msr.AddrHWPrefetch)
		require.NoError(t, err)
		require.Equal(t, uint64(0xABCD), v, "restore should write back the captured original value")
	}
}

// TestPoolDecideStopsActingOnBandwidthOnceOracleDisabled drives a
// persistently failing oracle through MaxConsecutiveFailures ticks and
// checks that the basic tuner, which would otherwise read the stale (zero)
// bandwidth as enormous slack and climb every tick, stops climbing once the
// oracle reports disabled (spec §4 failure semantics, "bandwidth cap
// disabled" mode).
func TestPoolDecideStopsActingOnBandwidthOnceOracleDisabled(t *testing.T) {
	shared := newTestShared()
	gw := msr.NewFakeGateway()
	bt := tuner.NewBasic(corestate.Basic0, 1.0, tuner.DefaultLevelTable)
	oracle := ddrbw.NewCached(alwaysFailingSource{})
	p := New(shared, gw, bt, oracle, clock.New(), nil)

	for i := 0; i <= ddrbw.MaxConsecutiveFailures; i++ {
		p.decide()
	}
	require.True(t, oracle.Disabled)
	levelAtDisable := bt.Level()
	require.Greater(t, levelAtDisable, 0, "tuner should have climbed while the oracle still counted as transiently failing")

	for i := 0; i < 5; i++ {
		p.decide()
	}
	require.Equal(t, levelAtDisable, bt.Level(), "level must hold once disabled; with zero PMU deltas the DRAM-hit brake does not fire")
}
