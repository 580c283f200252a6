// Package metrics holds the Prometheus collectors for the generation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "musicforge"

var (
	// StageTransitions counts accepted stage changes.
	// Labels: from, to
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_transitions_total",
			Help:      "Total number of accepted pipeline stage transitions",
		},
		[]string{"from", "to"},
	)

	// IllegalTransitions counts rejected stage changes.
	IllegalTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "illegal_transitions_total",
			Help:      "Total number of rejected pipeline stage transitions",
		},
	)

	// RunsTotal counts finished runs.
	// Labels: kind (generate, iterate), result (success, failure)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of finished generation runs",
		},
		[]string{"kind", "result"},
	)

	// RunDuration tracks wall time of a run.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of generation runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	// ActiveRuns is the number of runs currently in flight.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "active_runs",
			Help:      "Number of generation runs currently in flight",
		},
	)

	// LedgerEvictions counts ledgers dropped from the run registry.
	// Labels: reason (delivered, expired)
	LedgerEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "ledger_evictions_total",
			Help:      "Total number of progress ledgers evicted from the run registry",
		},
		[]string{"reason"},
	)

	// ProviderCalls counts calls to external providers.
	// Labels: provider (text, worker, storage), op, result (success, error)
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of external provider calls",
		},
		[]string{"provider", "op", "result"},
	)
)

// Result maps an error to the result label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
