package ddrbw

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMeasureBurstReturnsPositiveBandwidth(t *testing.T) {
	v := measureBurst(1<<16, 10*time.Millisecond)
	require.Greater(t, float64(v), float64(0))
}

func TestMeasureBurstRespectsDuration(t *testing.T) {
	start := time.Now()
	measureBurst(1<<16, 15*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestMeasurePeakOnCoreReturnsPositiveBandwidthEvenIfPinFails(t *testing.T) {
	// Core 0 always exists; a sandboxed test runner may still deny
	// sched_setaffinity, in which case pinToCore's error is swallowed and
	// the burst still runs unpinned.
	v := MeasurePeakOnCore(0)
	require.Greater(t, float64(v), float64(0))
}
