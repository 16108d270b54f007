package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marina",
		Name:      "boat_passes_ingested_total",
		Help:      "Total number of boat passes ingested",
	}, []string{"camera_id"})

	StatesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marina",
		Name:      "states_opened_total",
		Help:      "Total number of vessel states opened by reconciliation",
	})

	StatesClosed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marina",
		Name:      "states_closed_total",
		Help:      "Total number of vessel states closed by attaching a departure pass",
	})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "marina",
		Name:      "reconcile_duration_seconds",
		Help:      "Duration of one reconciliation decision",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	FramesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "marina",
		Name:      "frames_broadcast_total",
		Help:      "Total number of preview frames fanned out to subscribers",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "marina",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "marina",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
