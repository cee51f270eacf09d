package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Walk stages used as metric and log labels.
const (
	StageFetch   = "fetch"
	StageCombine = "combine"
	StageExtract = "extract"
	StageLimit   = "limit"
)

// Prometheus metrics for page-chain walks.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_pages_fetched_total",
		Help: "Total pages fetched by outcome",
	}, []string{"outcome"})

	walkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paged_walk_failures_total",
		Help: "Total page-chain walk failures by stage",
	}, []string{"stage"})

	walkPages = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paged_walk_pages",
		Help:    "Number of pages walked per completed walk",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
	})

	walkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paged_walk_duration_seconds",
		Help:    "Time from the first fetch until the last page was fed",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
