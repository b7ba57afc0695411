package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts queries by outcome (done, failed, invalid).
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperqa",
		Subsystem: "pipeline",
		Name:      "queries_total",
		Help:      "Total number of questions answered, by outcome",
	}, []string{"outcome"})

	// StageDuration tracks per-stage latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paperqa",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of retrieval pipeline stages in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage"})
)
