// Package metrics wires spec.md's Resource Emitter and per-loop cycle
// counters to Prometheus, following the teacher's pkg/metrics package almost
// exactly: package-level collector variables registered once in init(), a
// Handler() for mounting on an HTTP mux, and a Timer helper for histogram
// observations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// NodeCPULoad and NodeMemoryPercent mirror the last sample reported in
	// this node's own roster heartbeat.
	NodeCPULoad = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shortlist_node_cpu_load",
		Help: "Most recent local CPU load sample reported in the roster heartbeat",
	})
	NodeMemoryPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shortlist_node_memory_percent",
		Help: "Most recent local memory usage percentage reported in the roster heartbeat",
	})

	RosterHeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shortlist_roster_heartbeats_total",
		Help: "Total roster heartbeats committed by this node",
	})

	ClaimAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlist_claim_attempts_total",
		Help: "Total claim attempts by outcome",
	}, []string{"outcome"})

	LeaseRenewalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlist_lease_renewals_total",
		Help: "Total lease renewal attempts by outcome",
	}, []string{"outcome"})

	ActiveAssignments = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shortlist_active_assignments",
		Help: "Number of assignments this node currently holds in ACTIVE state",
	})

	GovernorCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlist_governor_cycles_total",
		Help: "Total Governor cycles by outcome",
	}, []string{"outcome"})

	GovernorCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "shortlist_governor_cycle_duration_seconds",
		Help: "Duration of a Governor evaluation cycle",
	})

	HealerCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlist_healer_cycles_total",
		Help: "Total Healer cycles by outcome",
	}, []string{"outcome"})

	HealerPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shortlist_healer_purged_assignments_total",
		Help: "Total assignments purged by the Healer across all cycles",
	})

	HealerCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "shortlist_healer_cycle_duration_seconds",
		Help: "Duration of a Healer sweep cycle",
	})

	RendererHealthChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlist_renderer_health_checks_total",
		Help: "Total renderer health probe outcomes",
	}, []string{"task_type", "healthy"})
)

func init() {
	prometheus.MustRegister(
		NodeCPULoad,
		NodeMemoryPercent,
		RosterHeartbeatsTotal,
		ClaimAttemptsTotal,
		LeaseRenewalsTotal,
		ActiveAssignments,
		GovernorCycles,
		GovernorCycleDuration,
		HealerCycles,
		HealerPurgedTotal,
		HealerCycleDuration,
		RendererHealthChecks,
	)
}

// Handler returns the Prometheus exposition HTTP handler for mounting at
// /metrics on the node's local-only metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for a histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}
