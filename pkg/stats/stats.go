// Package stats accumulates running averages across the life of a tuning
// session, the end-of-run summary analog of the teacher's energy
// accumulator (bandwidth/IPC/level/arm instead of power).
package stats

import "github.com/zedulotech/dpftune/pkg/types"

// Tick is one decision phase's observable outcome, handed to Accumulator
// once per tick by the worker pool's primary.
type Tick struct {
	Bandwidth types.MBPerSec
	IPC       float64
	Level     int // basic tuner's table index; -1 when running MAB
	Arm       int // MAB's chosen arm index; -1 when running a basic tuner
	Dirty     bool
}

// Accumulator keeps running sums and per-level/per-arm selection counts
// over a tuning session.
type Accumulator struct {
	count        int
	sumBandwidth float64
	sumIPC       float64
	dirtyWrites  int
	levelCounts  map[int]int
	armCounts    map[int]int
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		levelCounts: make(map[int]int),
		armCounts:   make(map[int]int),
	}
}

// Apply folds one tick's outcome into the running totals.
func (a *Accumulator) Apply(t Tick) {
	a.count++
	a.sumBandwidth += float64(t.Bandwidth)
	a.sumIPC += t.IPC
	if t.Dirty {
		a.dirtyWrites++
	}
	if t.Level >= 0 {
		a.levelCounts[t.Level]++
	}
	if t.Arm >= 0 {
		a.armCounts[t.Arm]++
	}
}

// Summary is the end-of-run report (spec §7: "the program is silent at
// default log level except for a startup banner and shutdown line").
type Summary struct {
	Ticks        int
	AvgBandwidth types.MBPerSec
	AvgIPC       float64
	DirtyWrites  int
	LevelCounts  map[int]int
	ArmCounts    map[int]int
}

// Summarize returns the accumulated averages and selection histograms.
func (a *Accumulator) Summarize() Summary {
	if a.count == 0 {
		return Summary{LevelCounts: map[int]int{}, ArmCounts: map[int]int{}}
	}
	n := float64(a.count)
	return Summary{
		Ticks:        a.count,
		AvgBandwidth: types.MBPerSec(a.sumBandwidth / n),
		AvgIPC:       a.sumIPC / n,
		DirtyWrites:  a.dirtyWrites,
		LevelCounts:  copyIntMap(a.levelCounts),
		ArmCounts:    copyIntMap(a.armCounts),
	}
}

func copyIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
