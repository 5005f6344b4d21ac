package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "allowance_tracker",
		Subsystem: "rpc_client",
		Name:      "operations_total",
		Help:      "Count of node RPC operations.",
	}, []string{"operation", "endpoint", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "allowance_tracker",
		Subsystem: "rpc_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of node RPC operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "endpoint", "status"})
)

// RPCClient tracks metrics for RPC calls to EVM nodes. The endpoint label
// carries the URL the pool routed each attempt to.
type RPCClient struct{}

// NewRPCClient constructs a metrics collector for RPC calls.
func NewRPCClient() *RPCClient {
	return &RPCClient{}
}

// Observe records a single RPC call outcome and duration.
func (m RPCClient) Observe(operation, endpoint string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	if endpoint == "" {
		endpoint = "unknown"
	}

	rpcRequestsTotal.WithLabelValues(operation, endpoint, status).Inc()
	rpcRequestDuration.WithLabelValues(operation, endpoint, status).Observe(time.Since(started).Seconds())
}
