package viz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var MetricSelections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sportsql_viz_selections_total",
		Help: "Chart selections, by chosen kind or fallback",
	},
	[]string{"kind"},
)
