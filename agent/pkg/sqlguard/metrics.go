package sqlguard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsql_sql_rejections_total",
			Help: "Candidate statements rejected by the validator, by reason",
		},
		[]string{"reason"},
	)

	MetricSynthesisAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sportsql_sql_synthesis_attempts",
			Help:    "LLM completions consumed per synthesized statement",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)
