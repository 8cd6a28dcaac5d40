package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_engine", Name: "matches_total", Help: "Total successful dispatch attempts"})
	SearchesExhausted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_engine", Name: "searches_exhausted_total", Help: "Searches that emptied the radius ladder"})
	AssignmentConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch_engine", Name: "assignment_conflicts_total", Help: "Reservations lost to a concurrent order"})
	SearchRadiusUsed    = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch_engine",
		Name:      "search_radius_km",
		Help:      "Radius at which a search terminated",
		Buckets:   []float64{5, 10, 15, 20},
	})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "dispatch_engine", Name: "drivers_online", Help: "Number of online drivers"})

	SweepCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_engine", Name: "sweep_cancellations_total", Help: "Orders reclaimed by the expiration sweep"},
		[]string{"type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch_engine", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch_engine",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
