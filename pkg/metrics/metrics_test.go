package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserveTickUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTick(12345, 1.5, 3, -1, true)

	require.Equal(t, float64(12345), gaugeValue(t, m.bandwidth))
	require.Equal(t, 1.5, gaugeValue(t, m.ipc))
	require.Equal(t, float64(3), gaugeValue(t, m.level))
	require.Equal(t, float64(-1), gaugeValue(t, m.arm))
}

func TestNilMetricsObserveTickIsNoOp(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveTick(100, 1.0, 0, -1, true)
		m.SetOracleDisabled(true)
	})
}

func TestSetOracleDisabledTogglesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetOracleDisabled(true)
	require.Equal(t, float64(1), gaugeValue(t, m.oracleDown))

	m.SetOracleDisabled(false)
	require.Equal(t, float64(0), gaugeValue(t, m.oracleDown))
}
