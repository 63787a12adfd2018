// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package metrics exposes Prometheus collectors for every moving part of
// the service: DuckDB queries, upstream game API calls, sync runs, caches,
// WebSocket fan-out and the circuit breaker. Collectors are registered on
// the default registry at init via promauto and served on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duckdb_connections_in_use",
			Help: "Current number of database connections in use",
		},
	)

	// Upstream game API metrics.
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gameapi_request_duration_seconds",
			Help:    "Duration of upstream game API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameapi_requests_total",
			Help: "Total number of upstream game API requests",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamPagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameapi_pages_fetched_total",
			Help: "Total number of pages fetched from paginated upstream endpoints",
		},
		[]string{"resource"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameapi_errors_total",
			Help: "Total number of upstream game API failures by class",
		},
		[]string{"endpoint", "class"}, // class: network, http, decode, validation
	)

	// Sync run metrics, one stream per run kind (ingest, builds, guildsync).
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: success, failure
	)

	RunLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_run_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per kind",
		},
		[]string{"kind"},
	)

	// Ingestion counters.
	EventsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_fetched_total",
			Help: "Total number of kill events fetched from upstream",
		},
	)

	EventsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_inserted_total",
			Help: "Total number of kill events inserted into storage",
		},
	)

	EventsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_duplicate_total",
			Help: "Total number of kill events skipped as duplicates",
		},
	)

	EventErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_event_errors_total",
			Help: "Total number of kill events that failed validation or persistence",
		},
	)

	BattlesUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_battles_upserted_total",
			Help: "Total number of battles inserted or updated",
		},
	)

	// Build aggregation metrics.
	BuildsComputed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "builds_computed",
			Help: "Number of meta builds produced by the last aggregation run",
		},
	)

	BuildBatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "builds_batch_errors_total",
			Help: "Total number of meta build insert batches that failed",
		},
	)

	// Guild sync metrics.
	GuildsSynced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildsync_guilds_synced_total",
			Help: "Total number of guilds fully synced",
		},
	)

	GuildSyncFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildsync_guild_failures_total",
			Help: "Total number of guilds whose sync failed",
		},
	)

	// API endpoint metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	AuthDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_denials_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"mode"},
	)

	// Cache metrics.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // builds, dedup
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	// WebSocket metrics.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// Circuit breaker metrics.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// NATS publish metrics.
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of failed NATS publishes",
		},
	)

	// System metrics.
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records the duration of one query and, on failure, an error
// counter keyed by a truncated error string.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordUpstreamRequest records one upstream game API call.
func RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordUpstreamError records an upstream failure. class is one of the
// error taxonomy values: network, http, decode, validation.
func RecordUpstreamError(endpoint, class string) {
	UpstreamErrors.WithLabelValues(endpoint, class).Inc()
}

// RecordRun records the outcome of one sync run.
func RecordRun(kind string, duration time.Duration, err error) {
	RunDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if err != nil {
		RunsTotal.WithLabelValues(kind, "failure").Inc()
		return
	}
	RunsTotal.WithLabelValues(kind, "success").Inc()
	RunLastSuccess.WithLabelValues(kind).Set(float64(time.Now().Unix()))
}

// RecordIngestReport adds one ingestion run's per-event counts.
func RecordIngestReport(fetched, inserted, duplicates, errors int) {
	EventsFetched.Add(float64(fetched))
	EventsInserted.Add(float64(inserted))
	EventsDuplicate.Add(float64(duplicates))
	EventErrors.Add(float64(errors))
}

// RecordCacheHit records a hit for the named cache.
func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a miss for the named cache.
func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordNATSPublish records one publish attempt.
func RecordNATSPublish(err error) {
	if err != nil {
		NATSPublishErrors.Inc()
		return
	}
	NATSMessagesPublished.Inc()
}

// SetBreakerState sets the breaker gauge. gobreaker states map to
// 0=closed, 1=half-open, 2=open.
func SetBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordBreakerTransition records one state change.
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordBreakerRequest records one request outcome through the breaker.
// result is success, failure or rejected.
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}
