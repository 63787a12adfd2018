// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/amerel/killboard/internal/database"
)

// PlayerStats handles GET /api/v1/players/{id}/stats.
func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	playerID := chi.URLParam(r, "id")
	if playerID == "" {
		resp.BadRequest("player id is required")
		return
	}

	stat, err := h.store.GetPlayerStats(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no stats recorded for player")
			return
		}
		resp.DatabaseError(err)
		return
	}
	resp.Success(stat)
}

// TopPlayers handles GET /api/v1/players/top?by=kills|fame&limit=.
func (h *Handler) TopPlayers(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	by := r.URL.Query().Get("by")
	if by == "" {
		by = "kills"
	}
	switch by {
	case "kills", "fame":
	default:
		resp.BadRequest("by must be kills or fame")
		return
	}

	limit, _ := parsePagination(r, 10, 100)

	players, err := h.store.ListTopPlayers(r.Context(), by, limit)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(players, &PaginationMeta{
		Count: len(players),
		Limit: limit,
	})
}

// GuildStats handles GET /api/v1/guilds/{id}/stats. The PvP counters
// come from local kill events; the latest roster snapshot, when one
// exists, rides along for name and fame context.
func (h *Handler) GuildStats(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	guildID := chi.URLParam(r, "id")
	if guildID == "" {
		resp.BadRequest("guild id is required")
		return
	}

	stat, err := h.store.GetGuildStats(r.Context(), guildID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no stats recorded for guild")
			return
		}
		resp.DatabaseError(err)
		return
	}

	payload := map[string]interface{}{"stats": stat}
	if snap, err := h.store.GetLatestGuildSnapshot(r.Context(), guildID); err == nil {
		payload["snapshot"] = snap
	}
	resp.Success(payload)
}

// GuildSnapshots handles GET /api/v1/guilds/{id}/snapshots?limit=.
func (h *Handler) GuildSnapshots(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	guildID := chi.URLParam(r, "id")
	limit, _ := parsePagination(r, 50, 500)

	snapshots, err := h.store.ListGuildSnapshots(r.Context(), guildID, limit)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(snapshots, &PaginationMeta{
		Count: len(snapshots),
		Limit: limit,
	})
}

// GuildMembers handles GET /api/v1/guilds/{id}/members, serving the
// roster from the most recent guild sync capture.
func (h *Handler) GuildMembers(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	guildID := chi.URLParam(r, "id")

	members, err := h.store.ListLatestGuildMembers(r.Context(), guildID)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	if len(members) == 0 {
		resp.NotFound("no roster captured for guild")
		return
	}
	resp.SuccessWithPagination(members, &PaginationMeta{Count: len(members)})
}

// GuildBattles handles GET /api/v1/guilds/{id}/battles?limit=.
func (h *Handler) GuildBattles(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	guildID := chi.URLParam(r, "id")
	limit, _ := parsePagination(r, 50, 500)

	battles, err := h.store.ListGuildBattles(r.Context(), guildID, limit)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(battles, &PaginationMeta{
		Count: len(battles),
		Limit: limit,
	})
}

// GuildRankings handles GET /api/v1/guilds/rankings?range=&limit=.
func (h *Handler) GuildRankings(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "day"
	}
	if !validTimeRange(rng) {
		resp.BadRequest("range must be day, week or month")
		return
	}

	limit, _ := parsePagination(r, 20, 100)

	rankings, err := h.store.ListGuildRankings(r.Context(), rng, limit)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(rankings, &PaginationMeta{
		Count: len(rankings),
		Limit: limit,
	})
}
