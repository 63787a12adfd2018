// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/amerel/killboard/internal/logging"
)

// Health handles GET /health. Liveness only: the process is up and
// answering. Readiness is the separate /ready probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{
		"status": "ok",
	})
}

// Ready handles GET /ready, pinging the database with a short
// deadline so a wedged DuckDB file flips the probe instead of hanging
// it.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("Readiness probe failed")
		resp.ServiceUnavailable("database not reachable")
		return
	}
	resp.Success(map[string]string{
		"status": "ready",
	})
}
