// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/amerel/killboard/internal/auth"
	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/middleware"
	"github.com/amerel/killboard/internal/models"
)

// newTestRouter assembles the full route tree over fakes. A nil guard
// leaves the trigger surface open, matching auth mode none.
func newTestRouter(t *testing.T, cfg *config.Config, guard *auth.Guard) http.Handler {
	t.Helper()

	store := &fakeStore{
		playerStats: map[string]*models.PlayerPvPStat{
			"p1": {PlayerID: "p1", Kills: 10},
		},
		guildStats: map[string]*models.GuildPvPStat{
			"g1": {GuildID: "g1", Kills: 50},
		},
		buildList:  []models.MetaBuild{{Fingerprint: "MAIN_SWORD|A|B|C|D"}},
		buildCount: 1,
	}

	c := cache.New(time.Minute)
	t.Cleanup(c.Close)
	perf := middleware.NewPerformanceMonitor(256)

	handler := NewHandler(HandlerConfig{
		Store:       store,
		Config:      cfg,
		Ingest:      &fakeIngest{run: models.NewSyncRun(models.RunKindIngest, models.TriggerAPI)},
		Builds:      &fakeBuilds{run: models.NewSyncRun(models.RunKindBuilds, models.TriggerAPI)},
		GuildSync:   &fakeGuildSync{run: models.NewSyncRun(models.RunKindGuildSync, models.TriggerAPI)},
		Upstream:    &fakeUpstream{state: "closed"},
		BuildsCache: c,
		Perf:        perf,
	})
	return NewRouter(handler, guard, cfg, perf).Setup()
}

func TestRouterRouteReachability(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/players/top", http.StatusOK},
		{http.MethodGet, "/api/v1/players/p1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/guilds/rankings", http.StatusOK},
		{http.MethodGet, "/api/v1/guilds/g1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/guilds/g1/snapshots", http.StatusOK},
		{http.MethodGet, "/api/v1/guilds/g1/battles", http.StatusOK},
		{http.MethodGet, "/api/v1/builds", http.StatusOK},
		{http.MethodGet, "/api/v1/events", http.StatusOK},
		{http.MethodGet, "/api/v1/battles", http.StatusOK},
		{http.MethodGet, "/api/v1/runs", http.StatusOK},
		{http.MethodGet, "/api/v1/status", http.StatusOK},
		{http.MethodGet, "/api/v1/audit", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/trigger", http.StatusAccepted},
		{http.MethodPost, "/api/v1/builds/aggregate", http.StatusAccepted},
		{http.MethodPost, "/api/v1/guilds/sync", http.StatusAccepted},
		// No hub wired, so the endpoint exists but refuses upgrades.
		{http.MethodGet, "/ws", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/builds", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRouterGuardsTriggerSurface(t *testing.T) {
	guard, err := auth.NewGuard(config.AuthConfig{Mode: "token", SyncToken: "s3cret"}, nil)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	router := newTestRouter(t, testConfig(), guard)

	t.Run("trigger denied without credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("trigger accepted with token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/trigger", nil)
		req.Header.Set("X-Sync-Token", "s3cret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want %d (body: %s)", rec.Code, http.StatusAccepted, rec.Body.String())
		}
	})

	t.Run("audit trail guarded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("market scan guarded", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/market/scan", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("read surface stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/builds", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestRouterRequestID(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	headerID := rec.Header().Get("X-Request-ID")
	if headerID == "" {
		t.Fatal("expected X-Request-ID response header")
	}

	env := decodeEnvelope(t, rec)
	if env.Meta == nil || env.Meta.RequestID != headerID {
		t.Errorf("meta request_id = %q, want header value %q", env.Meta.RequestID, headerID)
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRouterTriggerRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.TriggerPerMinute = 1
	router := newTestRouter(t, cfg, nil)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/builds/aggregate", nil))
	if first.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d, want %d", first.Code, http.StatusAccepted)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/builds/aggregate", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}

	env := decodeEnvelope(t, second)
	if env.Error == nil || env.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error = %+v, want code %s", env.Error, ErrCodeTooManyRequests)
	}
}

func TestRouterCompressesAPIResponses(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/builds", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("failed to open gzip reader: %v", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("failed to read gzip body: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("failed to decode decompressed envelope: %v", err)
	}
	if !env.Success {
		t.Error("expected success=true")
	}
}

func TestRouterHealthUncompressed(t *testing.T) {
	router := newTestRouter(t, testConfig(), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Probes sit outside the compressed group so load balancers read
	// them verbatim.
	if got := rec.Header().Get("Content-Encoding"); got == "gzip" {
		t.Error("health probe should not be compressed")
	}
}
