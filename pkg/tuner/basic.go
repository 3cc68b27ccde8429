package tuner

import (
	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/numeric"
	"github.com/zedulotech/dpftune/pkg/pmu"
	"github.com/zedulotech/dpftune/pkg/types"
)

// DefaultLevelTable is the ordered prefetcher-MSR configuration table the
// basic tuner climbs, from most conservative (index 0, all prefetchers
// disabled) to most aggressive (last index, every hardware prefetcher and
// cross-page/AMP behavior enabled). The bit layout is microarchitecture
// specific; treat these as reviewable constants (spec §4.A, §9).
var DefaultLevelTable = []uint64{
	0x00, // all prefetchers off
	0x01, // L2 stream only
	0x05, // + L2 adjacent-line
	0x0d, // + L1 stream
	0x1d, // + L1 IP-based
	0x3d, // + LLC streamer
	0x7d, // + cross-page
	0xfd, // all prefetchers, max aggressiveness (AMP enabled)
}

// Basic tuning thresholds and cooldown window (spec §4.F). Scaled by
// aggressiveness at decision time.
const (
	ThresholdUpMBps   = 2000.0
	ThresholdDownMBps = 2000.0
	CooldownTicks     = 2
	DRAMHitBrakeRatio = 0.35 // BASIC_1: DRAM-hit / all-loads ratio that forces a level step down
)

// Basic implements the hill-climbing tuner (spec §4.F). variant selects
// BASIC_0 or the BASIC_1 DRAM-hit-pressure variant; the level/direction/
// cooldown state tracked here is the "TunerState (Basic)" of spec §3,
// collapsed to one instance because every module observes the same
// aggregate bandwidth headroom and the same aggressiveness (see DESIGN.md).
type Basic struct {
	variant        corestate.TuneAlg
	aggressiveness float64
	table          []uint64

	level     int
	direction int8
	cooldown  int
}

// NewBasic builds a Basic tuner starting at the most conservative level.
func NewBasic(variant corestate.TuneAlg, aggressiveness float64, table []uint64) *Basic {
	return &Basic{variant: variant, aggressiveness: aggressiveness, table: table}
}

// Level returns the tuner's current index into its level table.
func (b *Basic) Level() int { return b.level }

// Decide implements the per-tick hill climb (spec §4.F steps 1-5). When
// bwDisabled is set the bandwidth oracle has been unavailable for more than
// ddrbw.MaxConsecutiveFailures ticks (spec §4 failure semantics): bw is a
// stale reading, so the headroom climb/descend is skipped entirely and the
// only signal driving the level is the DRAM-hit brake below, applied
// regardless of variant while disabled.
func (b *Basic) Decide(shared *corestate.Shared, bw types.MBPerSec, bwDisabled bool) error {
	maxLevel := len(b.table) - 1
	prevLevel := b.level

	if bwDisabled {
		if dramHitBrakeTriggered(shared) {
			b.level = numeric.ClampInt(b.level-1, 0, maxLevel)
		}
	} else {
		headroom := bw.Headroom(shared.Config.DDRBWTarget)
		up := ThresholdUpMBps * b.aggressiveness
		down := ThresholdDownMBps * b.aggressiveness

		switch {
		case headroom > up:
			b.level = numeric.ClampInt(b.level+1, 0, maxLevel)
		case headroom < -down:
			b.level = numeric.ClampInt(b.level-1, 0, maxLevel)
		}

		if b.variant == corestate.Basic1 && dramHitBrakeTriggered(shared) {
			b.level = numeric.ClampInt(b.level-1, 0, maxLevel)
		}
	}

	if b.level != prevLevel {
		if b.level > prevLevel {
			b.direction = 1
		} else {
			b.direction = -1
		}
		b.cooldown = CooldownTicks
		shared.SetDesiredMSR(b.table[b.level])
	} else if b.cooldown > 0 {
		b.cooldown--
	}
	return nil
}

// dramHitBrakeTriggered implements the BASIC_1 variant's additional brake:
// a high DRAM-hit share of all retired loads indicates cache-miss pressure
// that bandwidth headroom alone does not capture (spec §4.F, §9 "BASIC_1
// ambiguity" — the exact weighting is left a reviewable constant).
func dramHitBrakeTriggered(shared *corestate.Shared) bool {
	var dramHits, allLoads uint64
	for _, c := range shared.EnabledCores() {
		dramHits += c.PMUDelta[pmu.CounterDRAMHit]
		allLoads += c.PMUDelta[pmu.CounterAllLoads]
	}
	if allLoads == 0 {
		return false
	}
	return numeric.SafeDiv(float64(dramHits), float64(allLoads)) > DRAMHitBrakeRatio
}
