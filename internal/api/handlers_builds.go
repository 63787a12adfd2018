// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/models"
)

// buildsPage is the cached unit for the builds listing: the rows plus
// the pagination meta they were fetched with.
type buildsPage struct {
	builds     []models.MetaBuild
	pagination *PaginationMeta
}

// ListBuilds handles GET /api/v1/builds?healer_only=&limit=&offset=.
// Pages are served from the shared TTL cache; the build aggregator
// clears it whenever a run rewrites the meta_builds table.
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	healerOnly := queryBool(r, "healer_only")
	limit, offset := parsePagination(r, 50, 500)

	var key string
	if h.buildsCache != nil {
		key = cache.GenerateKey("builds_list", struct {
			HealerOnly bool
			Limit      int
			Offset     int
		}{healerOnly, limit, offset})

		if v, ok := h.buildsCache.Get(key); ok {
			if page, ok := v.(*buildsPage); ok {
				resp.SuccessWithPagination(page.builds, page.pagination)
				return
			}
		}
	}

	builds, err := h.store.ListMetaBuilds(r.Context(), healerOnly, limit, offset)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	total, err := h.store.CountMetaBuilds(r.Context())
	if err != nil {
		resp.DatabaseError(err)
		return
	}

	page := &buildsPage{
		builds: builds,
		pagination: &PaginationMeta{
			Total:   total,
			Count:   len(builds),
			Offset:  offset,
			Limit:   limit,
			HasMore: int64(offset+len(builds)) < total,
		},
	}
	if h.buildsCache != nil {
		h.buildsCache.Set(key, page)
	}
	resp.SuccessWithPagination(page.builds, page.pagination)
}

// GetBuild handles GET /api/v1/builds/{fingerprint}.
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	fingerprint := chi.URLParam(r, "fingerprint")
	if fingerprint == "" {
		resp.BadRequest("build fingerprint is required")
		return
	}

	build, err := h.store.GetMetaBuild(r.Context(), fingerprint)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no build with that fingerprint")
			return
		}
		resp.DatabaseError(err)
		return
	}
	resp.Success(build)
}

// ListEvents handles GET /api/v1/events with optional guild_id,
// player_id, battle_id, since and until filters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	limit, offset := parsePagination(r, 50, 1000)
	filter := database.EventFilter{
		GuildID:  r.URL.Query().Get("guild_id"),
		PlayerID: r.URL.Query().Get("player_id"),
		Limit:    limit,
		Offset:   offset,
	}

	if raw := r.URL.Query().Get("battle_id"); raw != "" {
		battleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			resp.BadRequest("battle_id must be an integer")
			return
		}
		filter.BattleID = battleID
	}

	since, err := parseTimeParam(r, "since")
	if err != nil {
		resp.BadRequest("since must be RFC 3339")
		return
	}
	filter.Since = since

	until, err := parseTimeParam(r, "until")
	if err != nil {
		resp.BadRequest("until must be RFC 3339")
		return
	}
	filter.Until = until

	events, err := h.store.ListKillEvents(r.Context(), filter)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(events, &PaginationMeta{
		Count:  len(events),
		Offset: offset,
		Limit:  limit,
		// A full page suggests more rows; a cheap signal that spares a
		// filtered COUNT on the largest table.
		HasMore: len(events) == limit,
	})
}

// GetEvent handles GET /api/v1/events/{eventID}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		resp.BadRequest("event id must be an integer")
		return
	}

	event, err := h.store.GetKillEventByEventID(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no kill event with that id")
			return
		}
		resp.DatabaseError(err)
		return
	}
	resp.Success(event)
}

// ListBattlesHandler handles GET /api/v1/battles?limit=&offset=.
func (h *Handler) ListBattlesHandler(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	limit, offset := parsePagination(r, 50, 500)

	battles, err := h.store.ListBattles(r.Context(), limit, offset)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	total, err := h.store.CountBattles(r.Context())
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(battles, &PaginationMeta{
		Total:   total,
		Count:   len(battles),
		Offset:  offset,
		Limit:   limit,
		HasMore: int64(offset+len(battles)) < total,
	})
}

// GetBattle handles GET /api/v1/battles/{battleID}.
func (h *Handler) GetBattle(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	battleID, err := strconv.ParseInt(chi.URLParam(r, "battleID"), 10, 64)
	if err != nil {
		resp.BadRequest("battle id must be an integer")
		return
	}

	battle, err := h.store.GetBattleByBattleID(r.Context(), battleID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no battle with that id")
			return
		}
		resp.DatabaseError(err)
		return
	}
	resp.Success(battle)
}

// parseTimeParam reads an RFC 3339 query parameter, nil when absent.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
