package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	connectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_connections_total",
			Help: "Total number of accepted bridge connections",
		},
	)

	takeoversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_takeovers_total",
			Help: "Total number of connection takeovers",
		},
	)

	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletbridge_active_connections",
			Help: "Whether a bridge connection is currently active (0 or 1)",
		},
	)

	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletbridge_pending_requests",
			Help: "Number of in-flight RPC requests awaiting a wallet response",
		},
	)

	requestTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_request_timeouts_total",
			Help: "Total number of RPC requests that timed out",
		},
	)

	idleDisconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_idle_disconnects_total",
			Help: "Total number of disconnects triggered by the idle timer",
		},
	)

	droppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "walletbridge_dropped_frames_total",
			Help: "Total number of inbound frames dropped as malformed or unroutable",
		},
	)
)

// RegisterMetrics registers the bridge collectors on r.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(
		connectionsTotal,
		takeoversTotal,
		activeConnections,
		pendingRequests,
		requestTimeoutsTotal,
		idleDisconnectsTotal,
		droppedFramesTotal,
	)
}
