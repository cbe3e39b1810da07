package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipsguard_events_total",
			Help: "The total number of request events scored by the engine",
		},
	)

	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ipsguard_risk_score",
			Help:    "Distribution of per-event risk scores",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 10, 15, 20, 30},
		},
	)

	RuleHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsguard_rule_hits_total",
			Help: "The number of times each scoring rule fired",
		},
		[]string{"rule"},
	)

	BansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ipsguard_bans_total",
			Help: "The total number of identifiers flagged for banning",
		},
	)

	// TrackedIdentifiers is moved by deltas so engines sharing a process
	// add up instead of overwriting each other.
	TrackedIdentifiers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipsguard_tracked_identifiers",
			Help: "The number of identifiers with live history",
		},
	)
)
