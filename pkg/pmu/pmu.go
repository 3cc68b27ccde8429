// Package pmu programs and samples the seven performance-counter events the
// tuners consume, plus the two architectural fixed counters (instructions
// retired, unhalted core cycles). It is stateless: deltas are the caller's
// job (spec §4.B).
package pmu

import "github.com/zedulotech/dpftune/pkg/msr"

// NumCounters is the number of programmable events dPF tracks per core.
const NumCounters = msr.NumEvents

// Counter indices into the seven-element array returned by Sample.
const (
	CounterAllLoads = iota
	CounterL2Hit
	CounterL3Hit
	CounterDRAMHit
	CounterXQPromotionAll
	CounterCyclesUnhalted
	CounterInstrRetired
)

// Events is the ordered event-select word for each of the seven counters,
// programmed into MSRs 0x186..0x18C. These encodings are microarchitecture
// specific; treat them as reviewable constants (spec §4.A, §9).
var Events = [NumCounters]uint64{
	CounterAllLoads:       0x0181D0, // MEM_UOPS_RETIRED.ALL_LOADS
	CounterL2Hit:          0x01D1D0, // MEM_LOAD_UOPS_RETIRED.L2_HIT
	CounterL3Hit:          0x04D1D0, // MEM_LOAD_UOPS_RETIRED.L3_HIT
	CounterDRAMHit:        0x01D3D0, // MEM_LOAD_UOPS_RETIRED.DRAM_HIT
	CounterXQPromotionAll: 0x012480, // XQ_PROMOTION.ALL
	CounterCyclesUnhalted: 0x00533C, // CPU_CLK_UNHALTED.THREAD
	CounterInstrRetired:   0x0053C0, // INST_RETIRED.ANY_P
}

// Counters is one tick's raw snapshot of the seven programmable events.
type Counters [NumCounters]uint64

// Sample reads the seven programmed counters plus the two architectural
// fixed counters from an open MSR handle.
func Sample(h msr.Handle) (counters Counters, instr, cycles uint64, err error) {
	for i := 0; i < NumCounters; i++ {
		v, rerr := h.Read(msr.AddrCounterBase + uint32(i))
		if rerr != nil {
			return Counters{}, 0, 0, rerr
		}
		counters[i] = v
	}
	instr, err = h.Read(msr.AddrFixedInstrRetired)
	if err != nil {
		return Counters{}, 0, 0, err
	}
	cycles, err = h.Read(msr.AddrFixedCycles)
	if err != nil {
		return Counters{}, 0, 0, err
	}
	return counters, instr, cycles, nil
}

// Configure programs the seven event-select MSRs and enables the fixed
// counters for h, matching the worker start-up sequence (spec §4.D).
func Configure(h msr.Handle) error {
	if err := h.EnableFixedCounters(); err != nil {
		return err
	}
	return h.ConfigureProgrammableEvents(Events)
}
