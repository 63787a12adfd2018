// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/amerel/killboard/internal/logging"
)

// slowRequestMS is the latency above which a request gets a warning log.
const slowRequestMS = 1000

// EndpointStats summarizes the recent latency profile of one endpoint.
// Served by the status endpoint, hence the JSON tags.
type EndpointStats struct {
	Endpoint      string  `json:"endpoint"`
	RequestCount  int64   `json:"request_count"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
	P50DurationMS int64   `json:"p50_duration_ms"`
	P95DurationMS int64   `json:"p95_duration_ms"`
	P99DurationMS int64   `json:"p99_duration_ms"`
	MaxDurationMS int64   `json:"max_duration_ms"`
}

type sample struct {
	endpoint   string
	durationMS int64
}

// PerformanceMonitor keeps a fixed-size window of recent request
// latencies. Prometheus histograms cover long-horizon monitoring; this
// window feeds the status endpoint with a human-readable snapshot of
// what the API did in the last few minutes.
type PerformanceMonitor struct {
	mu      sync.RWMutex
	samples []sample
	next    int
	filled  bool
}

// NewPerformanceMonitor creates a monitor retaining the last
// maxSamples requests. maxSamples below 1 defaults to 1024.
func NewPerformanceMonitor(maxSamples int) *PerformanceMonitor {
	if maxSamples < 1 {
		maxSamples = 1024
	}
	return &PerformanceMonitor{samples: make([]sample, maxSamples)}
}

// Record adds one request observation to the window.
func (pm *PerformanceMonitor) Record(method, endpoint string, duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples[pm.next] = sample{
		endpoint:   method + " " + endpoint,
		durationMS: duration.Milliseconds(),
	}
	pm.next++
	if pm.next == len(pm.samples) {
		pm.next = 0
		pm.filled = true
	}
}

// Stats aggregates the current window per endpoint, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	window := pm.samples[:pm.next]
	if pm.filled {
		window = pm.samples
	}

	byEndpoint := make(map[string][]int64)
	for _, s := range window {
		byEndpoint[s.endpoint] = append(byEndpoint[s.endpoint], s.durationMS)
	}

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, durations := range byEndpoint {
		sorted := make([]int64, len(durations))
		copy(sorted, durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, d := range sorted {
			sum += d
		}

		stats = append(stats, EndpointStats{
			Endpoint:      endpoint,
			RequestCount:  int64(len(sorted)),
			AvgDurationMS: float64(sum) / float64(len(sorted)),
			P50DurationMS: percentile(sorted, 0.50),
			P95DurationMS: percentile(sorted, 0.95),
			P99DurationMS: percentile(sorted, 0.99),
			MaxDurationMS: sorted[len(sorted)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request into the window and warns on slow
// requests.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pm.Record(r.Method, routePattern(r), duration)

		if duration.Milliseconds() > slowRequestMS {
			logging.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Int64("duration_ms", duration.Milliseconds()).
				Msg("Slow request")
		}
	})
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
