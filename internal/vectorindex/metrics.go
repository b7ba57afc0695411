package vectorindex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksInserted counts chunks written to the store.
	ChunksInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paperqa",
		Subsystem: "index",
		Name:      "chunks_inserted_total",
		Help:      "Total number of chunks inserted into the vector store",
	})

	// ChunksSkipped counts chunks dropped because their signature was already indexed
	// or repeated within the batch.
	ChunksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paperqa",
		Subsystem: "index",
		Name:      "chunks_skipped_total",
		Help:      "Total number of duplicate chunks skipped",
	})

	// InsertFailures counts failed batch inserts by cause (store, persist).
	InsertFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperqa",
		Subsystem: "index",
		Name:      "insert_failures_total",
		Help:      "Total number of failed batch inserts",
	}, []string{"cause"})
)
