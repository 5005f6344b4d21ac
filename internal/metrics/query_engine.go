package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allowance_tracker",
		Subsystem: "query_engine",
		Name:      "batches_total",
		Help:      "Count of executed query batches.",
	}, []string{"mode", "status"})

	queryBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "query_engine",
		Name:      "batch_duration_seconds",
		Help:      "Duration of executing one query batch.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode", "status"})

	queryBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "query_engine",
		Name:      "batch_size",
		Help:      "Number of owners per query batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1..512
	}, []string{"mode"})

	queryOwnerErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "allowance_tracker",
		Subsystem: "query_engine",
		Name:      "owner_errors_total",
		Help:      "Count of per-owner query failures.",
	})
)

// QueryEngine tracks metrics for batched allowance and balance queries.
type QueryEngine struct{}

// NewQueryEngine constructs a metrics collector for the batch query engine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{}
}

// ObserveBatch records one batch execution in the given mode.
func (m QueryEngine) ObserveBatch(mode string, err error, owners int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	queryBatchesTotal.WithLabelValues(mode, status).Inc()
	queryBatchDuration.WithLabelValues(mode, status).Observe(time.Since(started).Seconds())
	queryBatchSize.WithLabelValues(mode).Observe(float64(owners))
}

// AddOwnerErrors counts owners whose individual queries failed.
func (m QueryEngine) AddOwnerErrors(n int) {
	if n <= 0 {
		return
	}
	queryOwnerErrorsTotal.Add(float64(n))
}
