package corestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() GlobalConfig {
	return GlobalConfig{
		CoreFirst:      8,
		CoreLast:       11,
		TickInterval:   1.0,
		Aggressiveness: 1.0,
		DDRBWTarget:    20000,
		TuneAlg:        Basic0,
		Priority:       []int{10, 20, 30, 40},
	}
}

func TestActiveThreadsAndModuleIndex(t *testing.T) {
	cfg := testConfig()
	require.Equal(t, 4, cfg.ActiveThreads())
	assert.Equal(t, 0, cfg.ModuleIndex(8))
	assert.Equal(t, 1, cfg.ModuleIndex(9))
	assert.Equal(t, 3, cfg.ModuleIndex(11))
}

func TestNewSharedAssignsPriorityAndModuleIndex(t *testing.T) {
	s := NewShared(testConfig())
	require.Len(t, s.Cores, 4)
	assert.Equal(t, 10, s.Cores[0].Priority)
	assert.Equal(t, 40, s.Cores[3].Priority)
	assert.True(t, s.Cores[0].IsModuleLead())
	assert.False(t, s.Cores[1].IsModuleLead())
}

func TestNewSharedPadsMissingPriorities(t *testing.T) {
	cfg := testConfig()
	cfg.Priority = []int{99, 10}
	s := NewShared(cfg)
	got := []int{s.Cores[0].Priority, s.Cores[1].Priority, s.Cores[2].Priority, s.Cores[3].Priority}
	assert.Equal(t, []int{99, 10, DefaultPriority, DefaultPriority}, got)
}

func TestModuleLeadsOnlyIncludesEnabledLeads(t *testing.T) {
	s := NewShared(testConfig())
	s.Cores[2].Disabled = true // module index 2, not a lead anyway
	leads := s.ModuleLeads()
	require.Len(t, leads, 1)
	assert.Equal(t, 8, leads[0].CoreID)
}

func TestSetDesiredMSRSetsDirtyOnlyOnChange(t *testing.T) {
	s := NewShared(testConfig())
	s.SetDesiredMSR(0xAAAA)
	require.True(t, s.Cores[0].MSRDirty)
	assert.Equal(t, uint64(0xAAAA), s.Cores[0].DesiredMSR)

	s.Cores[0].MSRDirty = false
	s.SetDesiredMSR(0xAAAA) // same value: must not re-dirty
	assert.False(t, s.Cores[0].MSRDirty)

	s.SetDesiredMSR(0xBBBB)
	assert.True(t, s.Cores[0].MSRDirty)
}

func TestSumInstrCycles(t *testing.T) {
	s := NewShared(testConfig())
	s.Cores[0].InstrRetiredDelta, s.Cores[0].CPUCyclesDelta = 1000, 500
	s.Cores[1].InstrRetiredDelta, s.Cores[1].CPUCyclesDelta = 2000, 1000
	s.Cores[2].Disabled = true
	s.Cores[2].InstrRetiredDelta = 99999 // must be excluded

	instr, cycles := s.SumInstrCycles()
	assert.Equal(t, uint64(3000), instr)
	assert.Equal(t, uint64(1500), cycles)
}

func TestTuneAlgString(t *testing.T) {
	assert.Equal(t, "basic-0", Basic0.String())
	assert.Equal(t, "basic-1", Basic1.String())
	assert.Equal(t, "mab", MAB.String())
}
