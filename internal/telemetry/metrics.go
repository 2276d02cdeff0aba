// Package telemetry provides application-level observability for the 30x30
// Challenge backend.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server (default port
// 9090, configurable with T30_TELEMETRY_METRICS_PROMETHEUS_PORT). The endpoint
// is not part of the Gin router so it stays off the public ingress.
//
// HTTP metrics use c.FullPath() (the Gin route template, e.g.
// /api/v1/activities/:id) rather than the raw URL to prevent unbounded label
// cardinality from user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts processed HTTP requests by method, route template,
	// and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration is a latency histogram by method and route template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// ActivitiesIngestedTotal counts canonical activity records inserted, by source
	// (manual, strava, garmin) and path (manual, sync, webhook).
	ActivitiesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_ingested_total",
			Help: "Total number of activity records inserted, by source and ingestion path.",
		},
		[]string{"source", "path"},
	)

	// ActivitiesDedupedTotal counts provider activities skipped because their
	// external id was already stored for the user.
	ActivitiesDedupedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_deduped_total",
			Help: "Total number of provider activities skipped as already-ingested duplicates.",
		},
		[]string{"source"},
	)

	// ProviderSyncErrorsTotal counts failed provider API calls and token refreshes.
	ProviderSyncErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_sync_errors_total",
			Help: "Total number of provider sync failures, by provider and stage (refresh, list, fetch).",
		},
		[]string{"provider", "stage"},
	)

	// StreakRecomputeDuration measures how long a full aggregate+streak recompute
	// takes per user.
	StreakRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streak_recompute_duration_seconds",
			Help:    "Histogram of per-user streak recomputation latency, including daily aggregation.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// WebhookEventsTotal counts inbound provider webhook deliveries by outcome
	// (processed, ignored, rejected).
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of inbound provider webhook events, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// DBConnectionsOpen gauges the current open connection count of the pool.
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Current number of open database connections in the pool.",
		},
	)
)

// StartDBStatsCollector polls db.Stats() every 30 seconds and exports the open
// connection count. It runs for the lifetime of the process; the goroutine is
// intentionally not stoppable because the pool outlives every request.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := db.Stats()
			DBConnectionsOpen.Set(float64(stats.OpenConnections))
		}
	}()
	slog.Debug("database stats collector started")
}
