// Package config turns CLI flags into the immutable run configuration the
// rest of the tuner consumes (spec §6): core range, tick interval,
// aggressiveness, algorithm selection, per-core weights, log level, and the
// DDR bandwidth target inputs (ResolveTarget's mutually exclusive sources).
package config

import (
	"strconv"
	"strings"

	"github.com/zedulotech/dpftune/pkg/corestate"
	"github.com/zedulotech/dpftune/pkg/ddrbw"
	"github.com/zedulotech/dpftune/pkg/errs"
	"github.com/zedulotech/dpftune/pkg/logging"
	"github.com/zedulotech/dpftune/pkg/types"
)

// Tick interval and aggressiveness bounds (spec §3, §6).
const (
	MinTickInterval = 0.0001
	MaxTickInterval = 60.0
	MinAggr         = 0.1
	MaxAggr         = 5.0

	// DefaultDDRBWAutoFactor is --ddrbw-auto's default utilization factor.
	DefaultDDRBWAutoFactor = 0.70
)

// Flags is the raw, unvalidated set of CLI inputs (spec §6's flag table).
type Flags struct {
	Core           string  // "a" or "a-b"; empty means auto-detect via topology
	DDRBWAutoShare float64 // --ddrbw-auto factor applied to the DMI theoretical bandwidth
	DDRBWTest      bool
	DDRBWSet       bool
	DDRBWSetValue  int
	Interval       float64
	Alg            int // 0|1|2
	Aggressiveness float64
	Weight         string // CSV of ints, may be empty
	LogLevel       int
}

// DefaultFlags mirrors the reference CLI's defaults.
func DefaultFlags() Flags {
	return Flags{
		DDRBWAutoShare: DefaultDDRBWAutoFactor,
		Interval:       1.0,
		Alg:            0,
		Aggressiveness: 1.0,
		LogLevel:       int(logging.LevelInfo),
	}
}

// ParseCoreRange parses "a" or "a-b" into an inclusive [first,last] range.
func ParseCoreRange(s string) (first, last int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, errs.New(errs.ConfigurationError, "empty --core value")
	}
	if dash := strings.IndexByte(s, '-'); dash >= 0 {
		first, err = strconv.Atoi(strings.TrimSpace(s[:dash]))
		if err != nil {
			return 0, 0, errs.New(errs.ConfigurationError, "bad --core range %q", s)
		}
		last, err = strconv.Atoi(strings.TrimSpace(s[dash+1:]))
		if err != nil {
			return 0, 0, errs.New(errs.ConfigurationError, "bad --core range %q", s)
		}
		if last < first {
			return 0, 0, errs.New(errs.ConfigurationError, "--core range %q has last < first", s)
		}
		return first, last, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, errs.New(errs.ConfigurationError, "bad --core value %q", s)
	}
	return v, v, nil
}

// ParseWeights parses a CSV of priorities and fits it to activeThreads:
// truncated if longer, padded with corestate.DefaultPriority if shorter
// (spec §8 round-trip cases).
func ParseWeights(csv string, activeThreads int) ([]int, error) {
	out := make([]int, activeThreads)
	for i := range out {
		out[i] = corestate.DefaultPriority
	}
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return out, nil
	}
	fields := strings.Split(csv, ",")
	for i, f := range fields {
		if i >= activeThreads {
			break
		}
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errs.New(errs.ConfigurationError, "bad --weight entry %q", f)
		}
		if v < corestate.MinPriority || v > corestate.MaxPriority {
			return nil, errs.New(errs.ConfigurationError, "--weight entry %d out of range [0,99]", v)
		}
		out[i] = v
	}
	return out, nil
}

// ClampInterval restricts v to [MinTickInterval, MaxTickInterval].
func ClampInterval(v float64) float64 {
	if v < MinTickInterval {
		return MinTickInterval
	}
	if v > MaxTickInterval {
		return MaxTickInterval
	}
	return v
}

// ClampAggressiveness restricts v to [MinAggr, MaxAggr].
func ClampAggressiveness(v float64) float64 {
	if v < MinAggr {
		return MinAggr
	}
	if v > MaxAggr {
		return MaxAggr
	}
	return v
}

// AssertModuleAlignment enforces the precondition CORE_IN_MODULE relies on:
// coreFirst must sit at a 4-core module boundary (spec §9).
func AssertModuleAlignment(coreFirst int) error {
	if coreFirst%4 != 0 {
		return errs.New(errs.ConfigurationError,
			"--core first value %d is not aligned to a 4-core module boundary", coreFirst)
	}
	return nil
}

// ToTuneAlg maps the --alg flag's 0|1|2 values onto corestate.TuneAlg.
func ToTuneAlg(alg int) (corestate.TuneAlg, error) {
	switch alg {
	case 0:
		return corestate.Basic0, nil
	case 1:
		return corestate.Basic1, nil
	case 2:
		return corestate.MAB, nil
	default:
		return 0, errs.New(errs.ConfigurationError, "--alg must be 0, 1, or 2, got %d", alg)
	}
}

// DDRBWTargetInputs builds ddrbw.TargetInputs from the flags, leaving
// resolution (the priority rule) to ddrbw.ResolveTarget. The self-test
// burst, if requested, is pinned to coreFirst (spec §4.C).
func DDRBWTargetInputs(f Flags, theoreticalBW, coreFirst int) ddrbw.TargetInputs {
	in := ddrbw.TargetInputs{
		SelfTestRequested: f.DDRBWTest,
		MeasurePeak:       func() types.MBPerSec { return ddrbw.MeasurePeakOnCore(coreFirst) },
		TheoreticalBW:     theoreticalBW,
		UtilizationFactor: f.DDRBWAutoShare,
	}
	if f.DDRBWSet {
		v := types.MBPerSec(f.DDRBWSetValue)
		in.UserSet = &v
	}
	return in
}
