package config

import (
	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/types"
)

// Resolve validates f and builds the immutable GlobalConfig the worker pool
// and tuners run against. target must already be resolved via
// ddrbw.ResolveTarget.
func Resolve(f Flags, coreFirst, coreLast int, target types.MBPerSec) (corestate.GlobalConfig, error) {
	if err := AssertModuleAlignment(coreFirst); err != nil {
		return corestate.GlobalConfig{}, err
	}
	alg, err := ToTuneAlg(f.Alg)
	if err != nil {
		return corestate.GlobalConfig{}, err
	}
	activeThreads := coreLast - coreFirst + 1
	weights, err := ParseWeights(f.Weight, activeThreads)
	if err != nil {
		return corestate.GlobalConfig{}, err
	}

	return corestate.GlobalConfig{
		CoreFirst:      coreFirst,
		CoreLast:       coreLast,
		TickInterval:   ClampInterval(f.Interval),
		Aggressiveness: ClampAggressiveness(f.Aggressiveness),
		DDRBWTarget:    target,
		TuneAlg:        alg,
		Priority:       weights,
	}, nil
}
