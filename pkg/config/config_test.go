package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zedulotech/dpftune/pkg/corestate"
)

func TestParseCoreRangeSingle(t *testing.T) {
	first, last, err := ParseCoreRange("8")
	require.NoError(t, err)
	require.Equal(t, 8, first)
	require.Equal(t, 8, last)
}

func TestParseCoreRangeSpan(t *testing.T) {
	first, last, err := ParseCoreRange("8-11")
	require.NoError(t, err)
	require.Equal(t, 8, first)
	require.Equal(t, 11, last)
	require.Equal(t, 4, last-first+1)
}

func TestParseCoreRangeRejectsInverted(t *testing.T) {
	_, _, err := ParseCoreRange("11-8")
	require.Error(t, err)
}

func TestParseCoreRangeRejectsGarbage(t *testing.T) {
	_, _, err := ParseCoreRange("abc")
	require.Error(t, err)
}

func TestParseWeightsExactFit(t *testing.T) {
	w, err := ParseWeights("10,20,30,40", 4)
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30, 40}, w)
}

func TestParseWeightsTruncates(t *testing.T) {
	w, err := ParseWeights("10,20,30,40", 3)
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30}, w)
}

func TestParseWeightsPads(t *testing.T) {
	w, err := ParseWeights("10,20,30,40", 6)
	require.NoError(t, err)
	require.Equal(t, []int{10, 20, 30, 40, 50, 50}, w)
}

func TestParseWeightsShortListPadding(t *testing.T) {
	// spec §8 S6: --core 0-3 --weight 99,10 => priority = [99, 10, 50, 50]
	w, err := ParseWeights("99,10", 4)
	require.NoError(t, err)
	require.Equal(t, []int{99, 10, 50, 50}, w)
}

func TestParseWeightsEmptyUsesDefaultThroughout(t *testing.T) {
	w, err := ParseWeights("", 3)
	require.NoError(t, err)
	require.Equal(t, []int{50, 50, 50}, w)
}

func TestParseWeightsRejectsOutOfRange(t *testing.T) {
	_, err := ParseWeights("100", 1)
	require.Error(t, err)
}

func TestClampIntervalBounds(t *testing.T) {
	require.Equal(t, MinTickInterval, ClampInterval(0))
	require.Equal(t, MaxTickInterval, ClampInterval(100))
	require.Equal(t, 2.5, ClampInterval(2.5))
}

func TestClampAggressivenessBounds(t *testing.T) {
	require.Equal(t, MinAggr, ClampAggressiveness(0))
	require.Equal(t, MaxAggr, ClampAggressiveness(10))
}

func TestAssertModuleAlignment(t *testing.T) {
	require.NoError(t, AssertModuleAlignment(8))
	require.Error(t, AssertModuleAlignment(9))
}

func TestToTuneAlg(t *testing.T) {
	alg, err := ToTuneAlg(0)
	require.NoError(t, err)
	require.Equal(t, corestate.Basic0, alg)

	alg, err = ToTuneAlg(2)
	require.NoError(t, err)
	require.Equal(t, corestate.MAB, alg)

	_, err = ToTuneAlg(3)
	require.Error(t, err)
}

func TestResolveBuildsGlobalConfig(t *testing.T) {
	f := DefaultFlags()
	f.Weight = "10,20,30,40"
	cfg, err := Resolve(f, 8, 11, 20000)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.CoreFirst)
	require.Equal(t, 11, cfg.CoreLast)
	require.Equal(t, []int{10, 20, 30, 40}, cfg.Priority)
	require.Equal(t, corestate.Basic0, cfg.TuneAlg)
}

func TestResolveRejectsMisalignedCoreFirst(t *testing.T) {
	f := DefaultFlags()
	_, err := Resolve(f, 9, 12, 20000)
	require.Error(t, err)
}
