package harness

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scenariosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifitest_scenarios_total",
			Help: "Scenarios executed, by suite and outcome.",
		},
		[]string{"suite", "outcome"},
	)

	scenarioDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wifitest_scenario_duration_seconds",
			Help:    "Wall-clock scenario duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"suite"},
	)
)
