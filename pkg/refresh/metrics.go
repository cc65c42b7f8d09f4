package refresh

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsql_refresh_total",
			Help: "Full refresh runs, by outcome",
		},
		[]string{"outcome"},
	)

	MetricRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sportsql_refresh_duration_seconds",
			Help:    "Duration of full refresh runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	MetricLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sportsql_refresh_last_success_timestamp_seconds",
			Help: "Unix time of the last successful full refresh",
		},
	)

	MetricPlayerRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsql_refresh_player_total",
			Help: "Per-player refreshes, by outcome",
		},
		[]string{"outcome"},
	)
)
