package numeric

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeltaU64(t *testing.T) {
	cases := []struct {
		now, prev uint64
		want      uint64
	}{
		{10, 3, 7},
		{3, 10, 0}, // wrap/reset
		{5, 5, 0},
		{math.MaxUint64, 0, math.MaxUint64},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			require.Equal(t, tc.want, DeltaU64(tc.now, tc.prev))
		})
	}
}

func TestSafeDiv(t *testing.T) {
	assert.InDelta(t, 2.0, SafeDiv(10, 5), 1e-12)
	assert.Equal(t, 0.0, SafeDiv(10, 0))
	assert.Equal(t, 0.0, SafeDiv(10, 1e-20))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.1, Clamp(-5, 0.1, 5.0))
	assert.Equal(t, 5.0, Clamp(50, 0.1, 5.0))
	assert.Equal(t, 2.0, Clamp(2, 0.1, 5.0))
	assert.Equal(t, 0.1, Clamp(math.NaN(), 0.1, 5.0))
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 0, ClampInt(-5, 0, 99))
	assert.Equal(t, 99, ClampInt(500, 0, 99))
	assert.Equal(t, 50, ClampInt(50, 0, 99))
}

func TestEMA(t *testing.T) {
	e := NewEMA(0.5)
	assert.InDelta(t, 10.0, e.Next(10), 1e-12)
	assert.InDelta(t, 15.0, e.Next(20), 1e-12)
	assert.InDelta(t, 15.0, e.Value(), 1e-12)
}
