// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/metrics"
)

// healthRequestsPerMinute is the permissive bucket for liveness and
// readiness probes; monitoring polls these far more often than any
// client hits the data API.
const healthRequestsPerMinute = 1000

// corsMiddleware builds the CORS handler from config. An empty origin
// list means no cross-origin access; killboard never defaults to a
// wildcard.
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Sync-Token"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
}

// rateLimiter builds a per-IP limiter with the shared 429 envelope.
// Zero or negative budgets disable limiting for that group.
func rateLimiter(requestsPerMinute int, endpoint string) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded(endpoint)),
	)
}

func rateLimitExceeded(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.APIRateLimitHits.WithLabelValues(endpoint).Inc()
		NewResponseWriter(w, r).TooManyRequests("rate limit exceeded")
	}
}

// securityHeaders adds the response headers every API answer carries.
// No Content-Security-Policy: these endpoints never serve HTML.
func securityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
