package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpdatesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Inbound chat updates by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	UpdateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_update_duration_seconds",
			Help:    "Time spent handling one inbound update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SearchAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_api_requests_total",
			Help: "Search API calls by operation and result code",
		},
		[]string{"operation", "result"},
	)

	SearchAPIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_api_request_duration_seconds",
			Help:    "Latency of search API calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_sessions_active",
			Help: "Sessions currently held in the session store",
		},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_session_transitions_total",
			Help: "Session state transitions",
		},
		[]string{"from", "to"},
	)

	DuplicateUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_duplicate_updates_total",
			Help: "Updates dropped because their id was already seen",
		},
	)

	QueueOverflow = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_queue_overflow_total",
			Help: "Updates dropped because the user's queue was full",
		},
	)

	OutboundFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_outbound_failures_total",
			Help: "Messages the transport failed to deliver",
		},
		[]string{"method"},
	)
)
