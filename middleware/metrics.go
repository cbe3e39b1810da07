package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_blocked_requests_total",
			Help: "Requests rejected because the client is on the block list",
		},
		[]string{"source"},
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ipsguard_request_duration_seconds",
			Help: "Time taken to score and serve the request",
		},
		[]string{"method"},
	)
)
