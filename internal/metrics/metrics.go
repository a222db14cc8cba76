// Package metrics holds the Prometheus collectors shared by the HTTP layer
// and the outbound provider clients. Collectors register with the default
// registry on package init and are exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequestsTotal counts outbound provider calls by outcome
	// ("ok", "http_error", "network_error", "circuit_open").
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movietracker",
			Name:      "upstream_requests_total",
			Help:      "Outbound requests to external providers by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "movietracker",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of outbound provider requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// CircuitBreakerOpen is 1 while a provider's breaker is open.
	CircuitBreakerOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "movietracker",
			Name:      "circuit_breaker_open",
			Help:      "Whether the circuit breaker for a provider is open.",
		},
		[]string{"service"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movietracker",
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests by route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "movietracker",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RecommendationCandidatesTotal counts parsed completion candidates by
	// how they were resolved ("id", "search", "skipped", "duplicate", "backfill").
	RecommendationCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "movietracker",
			Name:      "recommendation_candidates_total",
			Help:      "Recommendation candidates by resolution path.",
		},
		[]string{"resolution"},
	)
)
