package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var DroppedAlerts = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ipsguard_webhook_dropped_total",
		Help: "Ban alerts dropped by the webhook rate limiter",
	},
)
