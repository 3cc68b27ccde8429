// Package corestate defines the data shared between the worker pool and the
// tuners: per-core state (CoreState), the immutable run configuration
// (GlobalConfig), and the Shared context a single process hands to every
// worker in place of package-level globals (spec §9 "Global mutable state").
package corestate

import (
	"github.com/zedulotech/dpftune/pkg/pmu"
	"github.com/zedulotech/dpftune/pkg/types"
)

// TuneAlg selects which tuner drives the decision phase.
type TuneAlg int

const (
	Basic0 TuneAlg = iota
	Basic1
	MAB
)

func (a TuneAlg) String() string {
	switch a {
	case Basic0:
		return "basic-0"
	case Basic1:
		return "basic-1"
	case MAB:
		return "mab"
	default:
		return "unknown"
	}
}

// Default priority and its valid range (spec §3).
const (
	MinPriority     = 0
	MaxPriority     = 99
	DefaultPriority = 50
)

// GlobalConfig is the immutable-after-startup run configuration (spec §3).
type GlobalConfig struct {
	CoreFirst      int
	CoreLast       int
	TickInterval   float64 // seconds, clamped to [0.0001, 60.0]
	Aggressiveness float64 // clamped to [0.1, 5.0]
	DDRBWTarget    types.MBPerSec
	TuneAlg        TuneAlg
	Priority       []int // len == ActiveThreads()
}

// ActiveThreads is core_last - core_first + 1.
func (c GlobalConfig) ActiveThreads() int { return c.CoreLast - c.CoreFirst + 1 }

// ModuleIndex returns a core's position (0..3) within its four-core module.
// Only valid when core_first is aligned to a module boundary (spec §9).
func (c GlobalConfig) ModuleIndex(coreID int) int {
	return (coreID - c.CoreFirst) % 4
}

// CoreState is the per-monitored-core mutable state (spec §3). It is owned
// by its worker goroutine and is read cross-thread only between the two
// barrier phases, while no writer is active (spec §4.H).
type CoreState struct {
	CoreID      int
	ModuleIndex int
	Disabled    bool
	Priority    int

	PMUPrev  pmu.Counters
	PMUCurr  pmu.Counters
	PMUDelta pmu.Counters

	InstrRetiredPrev, InstrRetiredCurr, InstrRetiredDelta uint64
	CPUCyclesPrev, CPUCyclesCurr, CPUCyclesDelta          uint64

	DesiredMSR uint64
	MSRDirty   bool

	LastErr error
}

// New builds a CoreState for coreID at the given module index and priority.
func New(coreID, moduleIndex, priority int) *CoreState {
	return &CoreState{CoreID: coreID, ModuleIndex: moduleIndex, Priority: priority}
}

// IsModuleLead reports whether this core is allowed to write the module's
// prefetcher MSR (spec invariant 1: only module_index == 0 may write).
func (c *CoreState) IsModuleLead() bool { return c.ModuleIndex == 0 }

// Shared is the single process-wide context handed by reference to every
// worker, replacing the reference implementation's package-level globals
// (quitflag, syncflag, gtinfo, mstate) per spec §9.
type Shared struct {
	Config GlobalConfig
	Cores  []*CoreState
}

// NewShared builds a Shared context with one CoreState per configured core.
func NewShared(cfg GlobalConfig) *Shared {
	s := &Shared{Config: cfg}
	s.Cores = make([]*CoreState, cfg.ActiveThreads())
	for i := range s.Cores {
		coreID := cfg.CoreFirst + i
		priority := DefaultPriority
		if i < len(cfg.Priority) {
			priority = cfg.Priority[i]
		}
		s.Cores[i] = New(coreID, cfg.ModuleIndex(coreID), priority)
	}
	return s
}

// EnabledCores returns the subset of cores not marked Disabled.
func (s *Shared) EnabledCores() []*CoreState {
	out := make([]*CoreState, 0, len(s.Cores))
	for _, c := range s.Cores {
		if !c.Disabled {
			out = append(out, c)
		}
	}
	return out
}

// ModuleLeads returns the enabled cores with ModuleIndex == 0, the only
// cores allowed to issue MSR writes.
func (s *Shared) ModuleLeads() []*CoreState {
	out := make([]*CoreState, 0, len(s.Cores)/4+1)
	for _, c := range s.Cores {
		if !c.Disabled && c.IsModuleLead() {
			out = append(out, c)
		}
	}
	return out
}

// SumInstrCycles returns the aggregate instructions-retired and
// unhalted-cycles deltas across every enabled core, the MAB tuner's IPC
// numerator/denominator (spec §4.G).
func (s *Shared) SumInstrCycles() (instr, cycles uint64) {
	for _, c := range s.EnabledCores() {
		instr += c.InstrRetiredDelta
		cycles += c.CPUCyclesDelta
	}
	return instr, cycles
}

// SetDesiredMSR applies value to every module lead, marking it dirty when
// it differs from what is currently programmed (spec invariant 4 and 5:
// desired_msr/msr_dirty mutated only here, during the decision phase).
func (s *Shared) SetDesiredMSR(value uint64) {
	for _, lead := range s.ModuleLeads() {
		if lead.DesiredMSR != value {
			lead.DesiredMSR = value
			lead.MSRDirty = true
		}
	}
}
