package tuner

import (
	"math"

	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/numeric"
	"github.com/zedulotech/dpftune/pkg/types"
)

// DynamicSD selects how the MAB exploration coefficient responds to IPC
// volatility (spec §3 "dynamic_sd_mode").
type DynamicSD int

const (
	DynamicSDOff DynamicSD = iota
	DynamicSDOn
	DynamicSDStep
)

// DefaultDynamicSD matches the reference deployment's default.
const DefaultDynamicSD = DynamicSDOff

// DefaultArms is the fixed action set of prefetcher-MSR configurations the
// MAB tuner explores (spec §4.G); reuses the basic tuner's level table so
// both algorithms act over a comparable hardware range.
var DefaultArms = DefaultLevelTable

const (
	// sdWindow bounds the rolling IPC window used for dynamic_sd (spec §3
	// "ipc_buffer, sd_buffer: bounded ring buffers; sized at init from
	// active_threads" — the buffer holds one sample per tick regardless of
	// active_threads, so its capacity here is a fixed, generous window and
	// active_threads only affects how many cores feed each sample).
	sdWindow = 64
	// sdHighThreshold triggers the STEP mode's exploration boost.
	sdHighThreshold = 0.15
	// sdStepDelta is the fixed adjustment STEP mode applies to the
	// exploration coefficient when volatility crosses sdHighThreshold.
	sdStepDelta = 0.5
)

// MAB implements the UCB1 bandit over a fixed arm set (spec §4.G).
type MAB struct {
	arms           []uint64
	aggressiveness float64
	dynamicSD      DynamicSD

	chosenArm    int
	meanReward   []float64
	trials       []int
	totalTrials  int
	ipcBuffer    []float64
	sdBufferHead int
	explorationC float64
}

// NewMAB builds a MAB tuner over arms, with UCB1 exploration coefficient c
// derived from aggressiveness (spec §4.G: "c is derived from
// aggressiveness").
func NewMAB(arms []uint64, aggressiveness float64, dynamicSD DynamicSD) *MAB {
	return &MAB{
		arms:           arms,
		aggressiveness: aggressiveness,
		dynamicSD:      dynamicSD,
		meanReward:     make([]float64, len(arms)),
		trials:         make([]int, len(arms)),
		explorationC:   aggressiveness,
	}
}

// ChosenArm returns the index of the most recently selected arm.
func (m *MAB) ChosenArm() int { return m.chosenArm }

// Decide implements one UCB1 pull: reward computation, arm selection,
// mean/trial update, and the dynamic-SD exploration adjustment (spec §4.G).
// When bwDisabled is set bw is a stale oracle reading (spec §4 failure
// semantics, "bandwidth cap disabled" mode), so the reward is IPC alone and
// the bandwidth-cap penalty below is skipped.
func (m *MAB) Decide(shared *corestate.Shared, bw types.MBPerSec, bwDisabled bool) error {
	instr, cycles := shared.SumInstrCycles()
	ipc := numeric.SafeDiv(float64(instr), math.Max(1, float64(cycles)))

	reward := ipc
	if target := shared.Config.DDRBWTarget; !bwDisabled && target > 0 && bw > target {
		reward *= float64(target) / float64(bw)
	}

	arm := m.selectArm()
	m.recordPull(arm, reward)
	m.pushIPC(ipc)
	m.updateExploration()

	shared.SetDesiredMSR(m.arms[arm])
	return nil
}

// selectArm runs the round-robin initialization sweep (spec §4.G "each arm
// is played at least once in round-robin before UCB kicks in") followed by
// UCB1 selection.
func (m *MAB) selectArm() int {
	for a, t := range m.trials {
		if t == 0 {
			m.chosenArm = a
			return a
		}
	}

	best, bestScore := 0, math.Inf(-1)
	logTotal := math.Log(float64(m.totalTrials))
	for a := range m.arms {
		score := m.meanReward[a] + m.explorationC*math.Sqrt(logTotal/float64(m.trials[a]))
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	m.chosenArm = best
	return best
}

func (m *MAB) recordPull(arm int, reward float64) {
	m.trials[arm]++
	m.totalTrials++
	n := float64(m.trials[arm])
	m.meanReward[arm] += (reward - m.meanReward[arm]) / n
}

func (m *MAB) pushIPC(ipc float64) {
	if m.dynamicSD == DynamicSDOff {
		return
	}
	if len(m.ipcBuffer) < sdWindow {
		m.ipcBuffer = append(m.ipcBuffer, ipc)
	} else {
		m.ipcBuffer[m.sdBufferHead] = ipc
		m.sdBufferHead = (m.sdBufferHead + 1) % sdWindow
	}
}

// updateExploration recomputes the IPC standard deviation and folds it into
// the UCB1 coefficient when dynamic_sd is ON or STEP (spec §4.G).
func (m *MAB) updateExploration() {
	if m.dynamicSD == DynamicSDOff || len(m.ipcBuffer) < 2 {
		m.explorationC = m.aggressiveness
		return
	}
	sd := stddev(m.ipcBuffer)

	switch m.dynamicSD {
	case DynamicSDOn:
		m.explorationC = m.aggressiveness * (1 + sd)
	case DynamicSDStep:
		if sd > sdHighThreshold {
			m.explorationC = m.aggressiveness + sdStepDelta
		} else {
			m.explorationC = m.aggressiveness
		}
	}
}

func stddev(xs []float64) float64 {
	n := float64(len(xs))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return math.Sqrt(variance)
}
