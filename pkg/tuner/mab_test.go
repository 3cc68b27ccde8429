package tuner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/types"
)

// newMABShared wires a Shared whose SumInstrCycles can be steered per tick
// (see setIPC) by directly setting InstrRetiredDelta/CPUCyclesDelta on its
// cores.
func newMABShared(t *testing.T, target types.MBPerSec) *corestate.Shared {
	t.Helper()
	cfg := corestate.GlobalConfig{
		CoreFirst:      8,
		CoreLast:       11,
		Aggressiveness: 1.0,
		DDRBWTarget:    target,
		Priority:       []int{50, 50, 50, 50},
	}
	return corestate.NewShared(cfg)
}

func setIPC(shared *corestate.Shared, ipc float64) {
	for _, c := range shared.EnabledCores() {
		c.CPUCyclesDelta = 1_000_000
		c.InstrRetiredDelta = uint64(ipc * 1_000_000)
	}
}

func TestMABInitializationSweepPlaysEveryArmOnce(t *testing.T) {
	shared := newMABShared(t, 0)
	arms := []uint64{0x00, 0x01, 0x02, 0x03}
	m := NewMAB(arms, 1.0, DynamicSDOff)

	seen := make(map[int]bool)
	for i := 0; i < len(arms); i++ {
		setIPC(shared, 1.0)
		require.NoError(t, m.Decide(shared, 0, false))
		seen[m.ChosenArm()] = true
	}
	require.Len(t, seen, len(arms))
	for a, trials := range m.trials {
		require.GreaterOrEqualf(t, trials, 1, "arm %d should have at least one trial", a)
	}
}

func TestMABExploitsHighRewardArmAfterSweep(t *testing.T) {
	shared := newMABShared(t, 0)
	arms := []uint64{0x00, 0x01, 0x02, 0x03}
	m := NewMAB(arms, 0.5, DynamicSDOff)

	// Round-robin init sweep.
	for i := 0; i < len(arms); i++ {
		if i == 2 {
			setIPC(shared, 2.0)
		} else {
			setIPC(shared, 1.0)
		}
		require.NoError(t, m.Decide(shared, 0, false))
	}

	selections := 0
	for i := 0; i < 100; i++ {
		if m.ChosenArm() == 2 {
			setIPC(shared, 2.0)
		} else {
			setIPC(shared, 1.0)
		}
		require.NoError(t, m.Decide(shared, 0, false))
		if m.ChosenArm() == 2 {
			selections++
		}
	}
	require.GreaterOrEqual(t, selections, 80)
}

func TestMABBandwidthCapPenalizesOverloadingArm(t *testing.T) {
	shared := newMABShared(t, 20000)
	arms := []uint64{0x00, 0x01, 0x02, 0x03}
	m := NewMAB(arms, 0.5, DynamicSDOff)

	decide := func() {
		// Peek at the arm this tick will select (selectArm is deterministic
		// and side-effect-free on trial counts) so the injected bandwidth
		// tracks the arm actually chosen this tick, not the previous one.
		upcoming := m.selectArm()
		bw := types.MBPerSec(10000)
		if upcoming == 2 {
			bw = types.MBPerSec(30000) // 1.5x target, penalizing arm 2's reward
		}
		setIPC(shared, 2.0)
		require.NoError(t, m.Decide(shared, bw, false))
	}

	for i := 0; i < len(arms); i++ {
		decide()
	}

	overloadSelections := 0
	for i := 0; i < 50; i++ {
		decide()
		if m.ChosenArm() == 2 {
			overloadSelections++
		}
	}
	require.LessOrEqual(t, overloadSelections, 25)
}

func TestMABAppliesChosenArmToModuleLeads(t *testing.T) {
	shared := newMABShared(t, 0)
	arms := []uint64{0xaa, 0xbb}
	m := NewMAB(arms, 1.0, DynamicSDOff)

	setIPC(shared, 1.0)
	require.NoError(t, m.Decide(shared, 0, false))
	for _, lead := range shared.ModuleLeads() {
		require.Equal(t, arms[m.ChosenArm()], lead.DesiredMSR)
	}
}

func TestMABDynamicSDStepBoostsExplorationUnderVolatility(t *testing.T) {
	shared := newMABShared(t, 0)
	arms := []uint64{0x00, 0x01}
	m := NewMAB(arms, 1.0, DynamicSDStep)

	for i := 0; i < len(arms); i++ {
		setIPC(shared, 1.0)
		require.NoError(t, m.Decide(shared, 0, false))
	}
	for i, v := range []float64{1.0, 5.0, 0.5, 6.0, 0.2} {
		setIPC(shared, v)
		require.NoError(t, m.Decide(shared, 0, false), "tick %d", i)
	}
	require.Greater(t, m.explorationC, m.aggressiveness)
}

func TestMABIgnoresBandwidthCapWhenOracleDisabled(t *testing.T) {
	shared := newMABShared(t, 20000)
	arms := []uint64{0x00, 0x01, 0x02, 0x03}
	m := NewMAB(arms, 0.5, DynamicSDOff)

	decide := func(bwDisabled bool) {
		upcoming := m.selectArm()
		bw := types.MBPerSec(30000) // 1.5x target; would penalize arm 2 if applied
		setIPC(shared, 2.0)
		require.NoError(t, m.Decide(shared, bw, bwDisabled))
		_ = upcoming
	}

	for i := 0; i < len(arms); i++ {
		decide(true)
	}

	overloadSelections := 0
	for i := 0; i < 50; i++ {
		decide(true)
		if m.ChosenArm() == 2 {
			overloadSelections++
		}
	}
	// With the oracle disabled the stale 1.5x-target reading must never
	// penalize arm 2's reward: since every arm sees the same IPC, arm 2 is
	// selected roughly as often as any other, not suppressed like in
	// TestMABBandwidthCapPenalizesOverloadingArm.
	require.Greater(t, overloadSelections, 5)
}
