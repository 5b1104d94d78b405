package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("feedcraft.dispatch")

var (
	// routesTotal counts route resolutions by timeline kind and result
	routesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcraft_dispatch_routes_total",
		Help: "Route resolutions by timeline kind and result",
	}, []string{"timeline", "result"})

	// entriesTotal counts handled deliveries by timeline kind and outcome
	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcraft_dispatch_entries_total",
		Help: "Timeline deliveries by timeline kind and outcome",
	}, []string{"timeline", "outcome"})

	routeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedcraft_dispatch_route_duration_seconds",
		Help:    "Fan-out duration per activity in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"activity"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcraft_dispatch_jobs_total",
		Help: "Deferred jobs by type and result",
	}, []string{"type", "result"})
)

// Delivery outcomes.
const (
	outcomeStored   = "stored"
	outcomeSkipped  = "skipped"
	outcomeDeferred = "deferred"
	outcomeFailed   = "failed"
)
