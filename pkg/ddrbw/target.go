package ddrbw

import (
	"github.com/zedulotech/dpftune/pkg/errs"
	"github.com/zedulotech/dpftune/pkg/types"
)

// DefaultUtilizationFactor is applied to the DMI theoretical bandwidth when
// neither --ddrbw-set nor --ddrbw-test is given (spec §4.C, §6).
const DefaultUtilizationFactor = 0.70

// TargetInputs carries the three mutually-exclusive ways a caller can
// request a bandwidth target, in the priority order spec §4.C names.
type TargetInputs struct {
	// UserSet is the value from --ddrbw-set, if the flag was given.
	UserSet *types.MBPerSec
	// SelfTestRequested is true when --ddrbw-test was given.
	SelfTestRequested bool
	// MeasurePeak performs the self-test burst; overridable in tests.
	MeasurePeak func() types.MBPerSec
	// TheoreticalBW is dmi.theoretical_bandwidth_mb_s(); -1 if unknown.
	TheoreticalBW int
	// UtilizationFactor scales TheoreticalBW; defaults applied by caller.
	UtilizationFactor float64
}

// ResolveTarget implements the ddr_bw_target derivation rule (spec §4.C):
// explicit --ddrbw-set wins, then a self-test measurement, then
// dmi_theoretical_bw × utilization_factor. A non-positive result at every
// step is a ConfigurationError.
func ResolveTarget(in TargetInputs) (types.MBPerSec, error) {
	if in.UserSet != nil {
		if *in.UserSet <= 0 {
			return 0, errs.New(errs.ConfigurationError, "ddrbw-set target must be positive, got %v", *in.UserSet)
		}
		return *in.UserSet, nil
	}

	if in.SelfTestRequested {
		measure := in.MeasurePeak
		if measure == nil {
			measure = MeasurePeak
		}
		peak := measure()
		if peak <= 0 {
			return 0, errs.New(errs.ConfigurationError, "self-test bandwidth measurement produced non-positive result")
		}
		return peak, nil
	}

	if in.TheoreticalBW <= 0 {
		return 0, errs.New(errs.ConfigurationError, "no DDR bandwidth set or detected (DMI theoretical bandwidth unavailable)")
	}
	factor := in.UtilizationFactor
	if factor <= 0 {
		factor = DefaultUtilizationFactor
	}
	target := types.MBPerSec(float64(in.TheoreticalBW) * factor)
	if target <= 0 {
		return 0, errs.New(errs.ConfigurationError, "derived DDR bandwidth target is non-positive")
	}
	return target, nil
}
