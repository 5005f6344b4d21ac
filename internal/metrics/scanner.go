package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "chunks_total",
		Help:      "Count of scanned block chunks.",
	}, []string{"status"})

	scanChunkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "chunk_duration_seconds",
		Help:      "Duration of fetching and decoding one chunk.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	scanChunkBlocks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "chunk_blocks",
		Help:      "Number of blocks covered per chunk.",
		Buckets:   prometheus.ExponentialBuckets(1000, 2, 8), // 1000..128000
	})

	scanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "runs_total",
		Help:      "Count of full historical scans.",
	}, []string{"status"})

	scanRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "run_duration_seconds",
		Help:      "Duration of full historical scans.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
	}, []string{"status"})

	scanOwnersFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "scanner",
		Name:      "owners_found",
		Help:      "Distinct approval owners discovered per scan.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10), // 1..262144
	})
)

// Scanner tracks metrics for the historical approval scan.
type Scanner struct{}

// NewScanner constructs a metrics collector for the log scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ObserveChunk records one chunk fetch outcome.
func (m Scanner) ObserveChunk(err error, blocks uint64, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	scanChunksTotal.WithLabelValues(status).Inc()
	scanChunkDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	scanChunkBlocks.Observe(float64(blocks))
}

// ObserveScan records a completed or aborted scan run.
func (m Scanner) ObserveScan(err error, owners int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	scanRunsTotal.WithLabelValues(status).Inc()
	scanRunDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	if err == nil {
		scanOwnersFound.Observe(float64(owners))
	}
}
