package fpl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MetricRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sportsql_fpl_requests_total",
		Help: "Requests to the upstream feed, by endpoint and outcome",
	},
	[]string{"endpoint", "outcome"},
)
