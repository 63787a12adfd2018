// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amerel/killboard/internal/auth"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/middleware"
)

// Router assembles the chi route tree.
type Router struct {
	handler *Handler
	guard   *auth.Guard
	cfg     *config.Config
	perf    *middleware.PerformanceMonitor
}

// NewRouter creates a router over the handler set. The performance
// monitor should be the one handed to the handler so the status
// endpoint reports the window this router records into.
func NewRouter(handler *Handler, guard *auth.Guard, cfg *config.Config, perf *middleware.PerformanceMonitor) *Router {
	return &Router{handler: handler, guard: guard, cfg: cfg, perf: perf}
}

// Setup builds the route tree with per-group middleware.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global stack, applied to every route.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(rt.cfg.CORS))

	// Probes and metrics: permissive dedicated bucket, no gzip, no
	// instrumentation of the instrumentation.
	r.Group(func(r chi.Router) {
		r.Use(rateLimiter(healthRequestsPerMinute, "health"))
		r.Get("/health", rt.handler.Health)
		r.Get("/ready", rt.handler.Ready)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The WebSocket upgrade stays outside the instrumented groups: an
	// upgraded connection lives for hours and would pin the
	// active-request gauge and the latency window.
	r.Group(func(r chi.Router) {
		r.Use(rateLimiter(rt.cfg.RateLimit.RequestsPerMinute, "ws"))
		r.Get("/ws", rt.handler.WebSocket)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(securityHeaders())
		r.Use(middleware.PrometheusMetrics)
		if rt.perf != nil {
			r.Use(rt.perf.Middleware)
		}
		r.Use(middleware.Compression)

		// Public read API.
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter(rt.cfg.RateLimit.RequestsPerMinute, "read"))

			r.Get("/players/top", rt.handler.TopPlayers)
			r.Get("/players/{id}/stats", rt.handler.PlayerStats)

			r.Get("/guilds/rankings", rt.handler.GuildRankings)
			r.Get("/guilds/{id}/stats", rt.handler.GuildStats)
			r.Get("/guilds/{id}/snapshots", rt.handler.GuildSnapshots)
			r.Get("/guilds/{id}/members", rt.handler.GuildMembers)
			r.Get("/guilds/{id}/battles", rt.handler.GuildBattles)

			r.Get("/builds", rt.handler.ListBuilds)
			r.Get("/builds/{fingerprint}", rt.handler.GetBuild)

			r.Get("/events", rt.handler.ListEvents)
			r.Get("/events/{eventID}", rt.handler.GetEvent)
			r.Get("/battles", rt.handler.ListBattlesHandler)
			r.Get("/battles/{battleID}", rt.handler.GetBattle)

			r.Get("/runs", rt.handler.ListRuns)
			r.Get("/runs/{id}", rt.handler.GetRun)
			r.Get("/status", rt.handler.Status)
		})

		// Guarded surface: run triggers, the market scanner (it can
		// spend upstream quota) and the audit trail.
		r.Group(func(r chi.Router) {
			r.Use(rateLimiter(rt.cfg.RateLimit.TriggerPerMinute, "trigger"))
			if rt.guard != nil {
				r.Use(rt.guard.Require)
			}

			r.Post("/sync/trigger", rt.handler.TriggerSync)
			r.Post("/builds/aggregate", rt.handler.TriggerBuilds)
			r.Post("/guilds/sync", rt.handler.TriggerGuildSync)
			r.Post("/market/scan", rt.handler.MarketScan)
			r.Get("/audit", rt.handler.ListAudit)
		})
	})

	return r
}
