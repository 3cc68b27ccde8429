// Package metrics exposes the tuner's per-tick decisions as Prometheus
// collectors: bandwidth, IPC, level/arm selection, and dirty-write counts.
// Registration is explicit and optional — a nil *Metrics is a valid no-op,
// so the worker pool can run unmodified with metrics disabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zedulotech/dpftune/pkg/types"
)

// Metrics holds the collectors registered against a single registry.
type Metrics struct {
	bandwidth   prometheus.Gauge
	ipc         prometheus.Gauge
	level       prometheus.Gauge
	arm         prometheus.Gauge
	dirtyWrites prometheus.Counter
	oracleDown  prometheus.Gauge
}

// New constructs a Metrics set and registers it against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bandwidth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpftune",
			Name:      "ddr_bandwidth_mb_per_sec",
			Help:      "Most recently observed aggregate DDR bandwidth, in MB/s.",
		}),
		ipc: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpftune",
			Name:      "ipc",
			Help:      "Instructions retired per unhalted core cycle, summed over enabled cores.",
		}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpftune",
			Name:      "basic_tuner_level",
			Help:      "Current index into the basic tuner's prefetcher level table (-1 when MAB is active).",
		}),
		arm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpftune",
			Name:      "mab_chosen_arm",
			Help:      "Currently selected MAB arm index (-1 when a basic tuner is active).",
		}),
		dirtyWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dpftune",
			Name:      "msr_dirty_writes_total",
			Help:      "Number of ticks in which at least one module-lead MSR write occurred.",
		}),
		oracleDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dpftune",
			Name:      "ddr_oracle_disabled",
			Help:      "1 when the DDR bandwidth oracle has been disabled after persistent failure, 0 otherwise.",
		}),
	}
	reg.MustRegister(m.bandwidth, m.ipc, m.level, m.arm, m.dirtyWrites, m.oracleDown)
	return m
}

// ObserveTick records one decision phase's outcome. A nil *Metrics is a
// no-op, so callers need not branch on whether metrics are enabled.
func (m *Metrics) ObserveTick(bw types.MBPerSec, ipc float64, level, arm int, dirty bool) {
	if m == nil {
		return
	}
	m.bandwidth.Set(float64(bw))
	m.ipc.Set(ipc)
	m.level.Set(float64(level))
	m.arm.Set(float64(arm))
	if dirty {
		m.dirtyWrites.Inc()
	}
}

// SetOracleDisabled reflects the DDR bandwidth oracle's disabled state
// (spec §4 Failure semantics: "switch to bandwidth cap disabled mode").
func (m *Metrics) SetOracleDisabled(disabled bool) {
	if m == nil {
		return
	}
	if disabled {
		m.oracleDown.Set(1)
		return
	}
	m.oracleDown.Set(0)
}
