package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openalexBatchTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openalex_batch_tasks_total",
			Help: "Finished batch tasks by outcome",
		},
		[]string{"outcome"}, // success, failure, cancelled
	)

	openalexBatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openalex_batch_in_flight",
			Help: "Fetch chains currently holding a limiter permit",
		},
	)

	openalexBatchTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openalex_batch_task_duration_seconds",
			Help:    "Batch task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		},
	)
)
