// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

/*
Package middleware provides HTTP middleware for the killboard API.

Every middleware here takes and returns http.Handler so it plugs
directly into chi's Use chain. The api package composes them with
chi's own RealIP and Recoverer plus go-chi/cors and go-chi/httprate;
this package carries the pieces that need killboard internals:

  - RequestID: X-Request-ID propagation wired into the logging context
  - PrometheusMetrics: per-route request counters and latency histograms
  - Compression: pooled gzip for clients that accept it
  - PerformanceMonitor: in-process latency window backing the status endpoint

Metric labels use the chi route pattern rather than the raw URL path,
so /api/v1/players/{id}/stats stays one label no matter how many
players exist.
*/
package middleware
