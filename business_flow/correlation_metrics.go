package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Correlation runs partitioned by outcome (completed, failed, dry_run, already_running)
	correlationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_correlation_runs_total",
			Help: "Total number of correlation runs by outcome",
		},
		[]string{"outcome"},
	)

	// Committed attributions partitioned by correlation method
	attributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attribution_conversions_total",
			Help: "Total number of conversions written to the click ledger",
		},
		[]string{"method"},
	)

	correlationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attribution_correlation_run_duration_seconds",
			Help:    "Wall time of correlation runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
