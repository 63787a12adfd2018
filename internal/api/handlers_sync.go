// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/builds"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/guildsync"
	"github.com/amerel/killboard/internal/ingest"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/validation"
)

// triggerSyncRequest is the body of POST /api/v1/sync/trigger. Every
// field is optional; zero values fall back to the configured defaults.
type triggerSyncRequest struct {
	KillsTarget   int    `json:"killsTarget" validate:"omitempty,gte=0"`
	BattlesTarget int    `json:"battlesTarget" validate:"omitempty,gte=0"`
	Range         string `json:"range" validate:"omitempty,oneof=day week month"`
}

// triggerGuildSyncRequest is the body of POST /api/v1/guilds/sync.
type triggerGuildSyncRequest struct {
	Range string `json:"range" validate:"omitempty,oneof=day week month"`
}

// triggerResponse acknowledges an accepted run.
type triggerResponse struct {
	RunID   uuid.UUID `json:"run_id"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// TriggerSync handles POST /api/v1/sync/trigger.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	if h.ingest == nil {
		resp.ServiceUnavailable("ingestion is not configured")
		return
	}

	var req triggerSyncRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		resp.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		resp.ValidationError("invalid trigger request", verr.Details())
		return
	}

	run, err := h.ingest.TriggerRun(r.Context(), ingest.RunOptions{
		KillsTarget:   req.KillsTarget,
		BattlesTarget: req.BattlesTarget,
		BattleRange:   req.Range,
		Trigger:       models.TriggerAPI,
	})
	if err != nil {
		h.writeTriggerError(resp, err, ingest.ErrRunInProgress, ingest.ErrNotRunning)
		return
	}

	resp.Accepted(triggerResponse{
		RunID:   run.ID,
		Kind:    run.Kind,
		Message: "ingestion run started",
	})
}

// TriggerBuilds handles POST /api/v1/builds/aggregate.
func (h *Handler) TriggerBuilds(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	if h.builds == nil {
		resp.ServiceUnavailable("build aggregation is not configured")
		return
	}

	run, err := h.builds.TriggerRun(r.Context(), models.TriggerAPI)
	if err != nil {
		h.writeTriggerError(resp, err, builds.ErrRunInProgress, builds.ErrNotRunning)
		return
	}

	resp.Accepted(triggerResponse{
		RunID:   run.ID,
		Kind:    run.Kind,
		Message: "build aggregation started",
	})
}

// TriggerGuildSync handles POST /api/v1/guilds/sync.
func (h *Handler) TriggerGuildSync(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	if h.guildSync == nil {
		resp.ServiceUnavailable("guild sync is not configured")
		return
	}

	var req triggerGuildSyncRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		resp.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		resp.ValidationError("invalid guild sync request", verr.Details())
		return
	}

	run, err := h.guildSync.TriggerRun(r.Context(), guildsync.RunOptions{
		Range:   req.Range,
		Trigger: models.TriggerAPI,
	})
	if err != nil {
		h.writeTriggerError(resp, err, guildsync.ErrRunInProgress, guildsync.ErrNotRunning)
		return
	}

	resp.Accepted(triggerResponse{
		RunID:   run.ID,
		Kind:    run.Kind,
		Message: "guild sync started",
	})
}

// writeTriggerError maps an engine trigger failure onto the envelope.
// Input validation happens before the engine call, so whatever is left
// is a slot conflict, a stopped engine, or a storage failure.
func (h *Handler) writeTriggerError(resp *ResponseWriter, err, errInProgress, errNotRunning error) {
	switch {
	case errors.Is(err, errInProgress):
		resp.Conflict(err.Error())
	case errors.Is(err, errNotRunning):
		resp.ServiceUnavailable(err.Error())
	default:
		resp.InternalError("failed to start run")
	}
}

// ListRuns handles GET /api/v1/runs?kind=&limit=&offset=.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", models.RunKindIngest, models.RunKindBuilds, models.RunKindGuildSync:
	default:
		resp.BadRequest("kind must be ingest, builds or guildsync")
		return
	}

	limit, offset := parsePagination(r, 20, 200)

	runs, err := h.store.ListSyncRuns(r.Context(), kind, limit, offset)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(runs, &PaginationMeta{
		Count:   len(runs),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(runs) == limit,
	})
}

// GetRun handles GET /api/v1/runs/{id}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		resp.BadRequest("run id must be a UUID")
		return
	}

	run, err := h.store.GetSyncRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			resp.NotFound("no run with that id")
			return
		}
		resp.DatabaseError(err)
		return
	}
	resp.Success(run)
}

// ListAudit handles GET /api/v1/audit?type=&limit=&offset=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	eventType := r.URL.Query().Get("type")
	limit, offset := parsePagination(r, 50, 500)

	events, err := h.store.ListAuditEvents(r.Context(), eventType, limit, offset)
	if err != nil {
		resp.DatabaseError(err)
		return
	}
	resp.SuccessWithPagination(events, &PaginationMeta{
		Count:   len(events),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(events) == limit,
	})
}

// engineState is one engine's row in the status payload.
type engineState struct {
	Running     bool       `json:"running"`
	RunInFlight bool       `json:"run_in_flight"`
	LastRun     *time.Time `json:"last_run,omitempty"`
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := NewResponseWriter(w, r)

	status := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	engines := map[string]interface{}{}
	if h.ingest != nil {
		engines[models.RunKindIngest] = newEngineState(h.ingest.Running(), h.ingest.RunInFlight(), h.ingest.LastRunTime())
	}
	if h.builds != nil {
		engines[models.RunKindBuilds] = newEngineState(h.builds.Running(), h.builds.RunInFlight(), h.builds.LastRunTime())
	}
	if h.guildSync != nil {
		engines[models.RunKindGuildSync] = newEngineState(h.guildSync.Running(), h.guildSync.RunInFlight(), h.guildSync.LastRunTime())
	}
	status["engines"] = engines

	if h.scheduler != nil {
		status["scheduler"] = h.scheduler.Snapshot()
	}
	if h.upstream != nil {
		status["upstream_breaker"] = h.upstream.State()
	}
	if h.hub != nil {
		status["websocket_clients"] = h.hub.GetClientCount()
	}
	if h.perf != nil {
		status["http"] = h.perf.Stats()
	}

	if counts, err := h.store.GetRecordCounts(r.Context()); err == nil {
		status["database"] = counts
	} else {
		logging.Warn().Err(err).Msg("Failed to read record counts for status")
	}

	resp.Success(status)
}

func newEngineState(running, inFlight bool, lastRun time.Time) engineState {
	st := engineState{Running: running, RunInFlight: inFlight}
	if !lastRun.IsZero() {
		st.LastRun = &lastRun
	}
	return st
}
