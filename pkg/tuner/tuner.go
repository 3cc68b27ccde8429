// Package tuner implements the two decision-phase algorithms (spec §4.F,
// §4.G): deterministic hill-climbing ("basic") and a UCB1 multi-armed
// bandit ("MAB"). Both consume the aggregate DDR bandwidth reading and the
// per-core deltas already collected on corestate.Shared, and both act
// exclusively by calling Shared.SetDesiredMSR — the decision phase never
// touches hardware directly (spec invariant 4).
package tuner

import (
	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/types"
)

// Tuner is invoked exactly once per tick, by the primary worker, while every
// other worker is suspended at the barrier (spec §4.D, §4.E).
type Tuner interface {
	// Decide reads shared's per-core deltas and bw, and calls
	// shared.SetDesiredMSR with the chosen prefetcher-MSR value. When
	// bwDisabled is true the DDR bandwidth oracle has failed for more than
	// ddrbw.MaxConsecutiveFailures ticks (spec §4 Failure semantics,
	// "bandwidth cap disabled" mode) and bw is a stale reading that must be
	// ignored in favor of deciding from PMU counters alone.
	Decide(shared *corestate.Shared, bw types.MBPerSec, bwDisabled bool) error
}

// New builds the tuner named by alg, sharing the same default level/arm
// table so BASIC_0/BASIC_1/MAB runs are comparable.
func New(alg corestate.TuneAlg, aggressiveness float64) Tuner {
	switch alg {
	case corestate.MAB:
		return NewMAB(DefaultArms, aggressiveness, DefaultDynamicSD)
	default:
		return NewBasic(alg, aggressiveness, DefaultLevelTable)
	}
}
