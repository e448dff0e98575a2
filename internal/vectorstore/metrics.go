package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: operation (add, query, update, delete, count), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infrad",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"operation", "result"},
	)

	// OperationDuration tracks how long store operations take.
	// Labels: operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "infrad",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// DocumentsStored tracks documents written per collection group.
	DocumentsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "infrad",
			Subsystem: "vectorstore",
			Name:      "documents_stored_total",
			Help:      "Total number of documents written to the vector store",
		},
		[]string{"group"},
	)

	// CollectionsGauge tracks the number of known collections.
	CollectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "infrad",
			Subsystem: "vectorstore",
			Name:      "collections",
			Help:      "Number of collections known to the vector store",
		},
	)
)

// RecordOperation records the outcome and duration of a store operation.
func RecordOperation(operation string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
