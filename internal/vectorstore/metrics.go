package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts index operations by operation and result.
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsdocs",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Vector index operations by operation (append, search, save, load) and result",
		},
		[]string{"operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opsdocs",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector index operations in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"operation"},
	)

	indexChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "opsdocs",
			Subsystem: "vectorstore",
			Name:      "index_chunks",
			Help:      "Chunks in the most recently built or loaded index",
		},
	)
)

func observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
