// Package metrics exposes Prometheus collectors for settlement runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Runs counts settlement runs by kind and terminal outcome
	// (committed, already_settled, nothing_to_settle, failed).
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Name:      "runs_total",
		Help:      "Settlement runs by kind and outcome.",
	}, []string{"kind", "outcome"})

	// RunDuration observes end-to-end run latency by kind.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "settlement",
		Name:      "run_duration_seconds",
		Help:      "Settlement run duration by kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// DriversSettled counts drivers paid out across committed runs.
	DriversSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "settlement",
		Name:      "drivers_settled_total",
		Help:      "Drivers settled across committed runs, by kind.",
	}, []string{"kind"})
)

// ObserveRun records one settlement run.
func ObserveRun(kind, outcome string, drivers int, elapsed time.Duration) {
	Runs.WithLabelValues(kind, outcome).Inc()
	RunDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if drivers > 0 {
		DriversSettled.WithLabelValues(kind).Add(float64(drivers))
	}
}
