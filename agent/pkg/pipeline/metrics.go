package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsql_pipeline_requests_total",
			Help: "Questions answered, by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	MetricRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sportsql_pipeline_request_duration_seconds",
			Help:    "Time to answer a question, by mode",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 120},
		},
		[]string{"mode"},
	)

	MetricSubQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sportsql_pipeline_subqueries_total",
			Help: "Deep-mode sub-questions, by outcome",
		},
		[]string{"outcome"},
	)
)

func observe(mode Mode, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	MetricRequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	MetricRequestDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
}
