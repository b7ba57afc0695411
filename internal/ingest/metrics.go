package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsTotal counts processed documents.
	// Labels: outcome (succeeded, quarantined, retryable), reason
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents processed by outcome",
		},
		[]string{"outcome", "reason"},
	)

	// DocumentDuration tracks end-to-end processing time per document.
	DocumentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "ingest",
			Name:      "document_duration_seconds",
			Help:      "Time to process one document in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
	)

	// InsertRetries counts retried batch inserts.
	InsertRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "ingest",
			Name:      "insert_retries_total",
			Help:      "Total number of retried chunk inserts",
		},
	)
)
