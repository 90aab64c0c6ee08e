// Package obs exposes Prometheus instrumentation for the engine. All
// metrics live in the default registry so the /metrics endpoint picks
// them up without wiring.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts simulation runs by terminal status
	// (ok, failed, cancelled).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_sim",
		Name:      "runs_total",
		Help:      "Simulation runs by terminal status.",
	}, []string{"status"})

	// RunDuration tracks wall time per simulation run.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "strategy_sim",
		Name:      "run_duration_seconds",
		Help:      "Wall time of simulation runs.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	})

	// BarsProcessed counts bars consumed across all runs.
	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "strategy_sim",
		Name:      "bars_processed_total",
		Help:      "Bars consumed across all simulation runs.",
	})

	// SweepEntries counts sweep run outcomes by status.
	SweepEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strategy_sim",
		Name:      "sweep_entries_total",
		Help:      "Parameter sweep entries by outcome.",
	}, []string{"status"})
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
