package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PublicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_publications_total",
			Help: "Publish attempts by result.",
		},
		[]string{"result"},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_rollbacks_total",
			Help: "Rollback attempts by result.",
		},
		[]string{"result"},
	)

	RenderCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_cache_lookups_total",
			Help: "Render cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)
