// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/amerel/killboard/internal/logging"
)

// envelope mirrors APIResponse with raw data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return env
}

func TestSuccessEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-123"))
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Success(map[string]string{"status": "ok"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success=true")
	}
	if env.Error != nil {
		t.Errorf("unexpected error in success envelope: %+v", env.Error)
	}
	if env.Meta == nil {
		t.Fatal("expected meta in success envelope")
	}
	if env.Meta.RequestID != "req-123" {
		t.Errorf("meta request_id = %q, want req-123", env.Meta.RequestID)
	}
	if env.Meta.Timestamp.IsZero() {
		t.Error("expected non-zero meta timestamp")
	}

	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data["status"] != "ok" {
		t.Errorf("data = %v, want status ok", data)
	}
}

func TestErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		write      func(rw *ResponseWriter)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "bad request",
			write:      func(rw *ResponseWriter) { rw.BadRequest("limit must be an integer") },
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "not found",
			write:      func(rw *ResponseWriter) { rw.NotFound("no run with that id") },
			wantStatus: http.StatusNotFound,
			wantCode:   ErrCodeNotFound,
		},
		{
			name:       "conflict",
			write:      func(rw *ResponseWriter) { rw.Conflict("a run is already in progress") },
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
		},
		{
			name:       "too many requests",
			write:      func(rw *ResponseWriter) { rw.TooManyRequests("rate limit exceeded") },
			wantStatus: http.StatusTooManyRequests,
			wantCode:   ErrCodeTooManyRequests,
		},
		{
			name:       "internal error",
			write:      func(rw *ResponseWriter) { rw.InternalError("failed to start run") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   ErrCodeInternalError,
		},
		{
			name:       "service unavailable",
			write:      func(rw *ResponseWriter) { rw.ServiceUnavailable("ingestion is not configured") },
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			rec := httptest.NewRecorder()

			tt.write(NewResponseWriter(rec, req))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("expected success=false")
			}
			if env.Error == nil {
				t.Fatal("expected error in envelope")
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", env.Error.Code, tt.wantCode)
			}
			if env.Error.Message == "" {
				t.Error("expected non-empty error message")
			}
		})
	}
}

func TestValidationErrorDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	rec := httptest.NewRecorder()

	details := map[string]interface{}{
		"fields": []map[string]string{{"field": "range", "tag": "oneof"}},
	}
	NewResponseWriter(rec, req).ValidationError("request validation failed", details)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v, want code %s", env.Error, ErrCodeValidationFailed)
	}
	if env.Error.Details == nil {
		t.Error("expected validation details in error")
	}
}

func TestDatabaseErrorHidesDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).DatabaseError(errors.New("duckdb: catalog corrupted at offset 42"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeDatabaseError {
		t.Fatalf("error = %+v, want code %s", env.Error, ErrCodeDatabaseError)
	}
	// The storage failure stays in the log.
	if strings.Contains(env.Error.Message, "duckdb") {
		t.Errorf("error message leaks storage detail: %q", env.Error.Message)
	}
}

func TestUpstreamErrorEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/market/scan", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).UpstreamError(errors.New("circuit breaker is open"))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeUpstreamError {
		t.Fatalf("error = %+v, want code %s", env.Error, ErrCodeUpstreamError)
	}
}

func TestAcceptedEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).Accepted(map[string]string{"message": "ingestion run started"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Error("expected success=true on accepted")
	}
}

func TestSuccessWithPaginationMeta(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/builds", nil)
	rec := httptest.NewRecorder()

	NewResponseWriter(rec, req).SuccessWithPagination([]string{"a", "b"}, &PaginationMeta{
		Total:   10,
		Count:   2,
		Offset:  4,
		Limit:   2,
		HasMore: true,
	})

	env := decodeEnvelope(t, rec)
	if env.Meta == nil || env.Meta.Pagination == nil {
		t.Fatal("expected pagination meta")
	}
	p := env.Meta.Pagination
	if p.Total != 10 || p.Count != 2 || p.Offset != 4 || p.Limit != 2 || !p.HasMore {
		t.Errorf("pagination = %+v, want total 10 count 2 offset 4 limit 2 has_more", p)
	}
}
