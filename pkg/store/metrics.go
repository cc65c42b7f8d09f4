package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sportsql_store_query_duration_seconds",
			Help:    "Duration of generated queries",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	MetricQueryRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sportsql_store_query_rows",
			Help:    "Rows returned by generated queries",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
	)

	MetricQueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sportsql_store_query_errors_total",
			Help: "Generated queries the database rejected",
		},
	)
)
