// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package auth

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
)

// Require guards a handler with the configured auth mode. Requests
// that fail verification get a generic 401; the precise reason goes
// to the audit log only.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.mode == ModeNone {
			next.ServeHTTP(w, r)
			return
		}

		id, err := g.verify(r)
		if err != nil {
			g.unauthorized(w, r, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (g *Guard) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.AuthDenials.WithLabelValues(g.mode).Inc()
	if g.auditor != nil {
		g.auditor.LogAuthDenied(r, reason)
	}
	logging.Warn().
		Str("path", r.URL.Path).
		Str("mode", g.mode).
		Str("reason", reason).
		Msg("Rejected unauthenticated request")

	if g.mode == ModeBasic {
		w.Header().Set("WWW-Authenticate", `Basic realm="Killboard", charset="UTF-8"`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)

	// Mirrors the api package envelope without importing it.
	body := struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	body.Error.Code = "UNAUTHORIZED"
	body.Error.Message = "unauthorized"
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to write auth error response")
	}
}
