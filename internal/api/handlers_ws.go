// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"net/http"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/websocket"
)

// WebSocket handles GET /ws, upgrading the connection and handing the
// client to the hub for run progress and kill event broadcasts.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not configured")
		NewResponseWriter(w, r).ServiceUnavailable("live feed unavailable")
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}

// checkWebSocketOrigin admits non-browser clients (no Origin header)
// and browsers whose Origin is on the CORS allowlist. Scripts and
// dashboards polling the feed outnumber browser consumers here, so an
// absent Origin is expected rather than suspicious.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cfg == nil {
		return true
	}

	for _, allowed := range h.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", origin).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
