package merge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	openalexMergeDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openalex_merge_duplicates_total",
			Help: "Records dropped as duplicates while merging batches",
		},
	)

	openalexMergeSkippedBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openalex_merge_skipped_batches_total",
			Help: "Failed batches skipped by best-effort merges",
		},
	)
)
