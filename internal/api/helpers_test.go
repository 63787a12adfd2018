// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/guildsync"
	"github.com/amerel/killboard/internal/ingest"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
	"github.com/amerel/killboard/internal/scheduler"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

// errFailed is the sentinel injected into fakes to force failures.
var errFailed = errors.New("injected failure")

// fakeStore satisfies Store with canned data. Setting err fails every
// call except Ping, which has its own knob so readiness tests can flip
// just the probe.
type fakeStore struct {
	err     error
	pingErr error

	counts database.RecordCounts

	playerStats map[string]*models.PlayerPvPStat
	topPlayers  []models.PlayerPvPStat

	guildStats     map[string]*models.GuildPvPStat
	guildSnapshot  *models.GuildSnapshot
	guildSnapshots []models.GuildSnapshot
	guildMembers   []models.GuildMember
	guildBattles   []models.GuildBattle
	guildRankings  []models.GuildRanking

	builds     map[string]*models.MetaBuild
	buildList  []models.MetaBuild
	buildCount int64

	// listBuildCalls counts ListMetaBuilds hits so cache tests can
	// prove the second request never reached the store.
	listBuildCalls int

	events    map[int64]*models.KillEvent
	eventList []models.KillEvent
	gotFilter database.EventFilter

	battles     map[int64]*models.Battle
	battleList  []models.Battle
	battleCount int64

	runs    map[uuid.UUID]*models.SyncRun
	runList []models.SyncRun

	auditEvents []models.AuditEvent
}

func (s *fakeStore) Ping(_ context.Context) error { return s.pingErr }

func (s *fakeStore) GetRecordCounts(_ context.Context) (database.RecordCounts, error) {
	if s.err != nil {
		return database.RecordCounts{}, s.err
	}
	return s.counts, nil
}

func (s *fakeStore) GetPlayerStats(_ context.Context, playerID string) (*models.PlayerPvPStat, error) {
	if s.err != nil {
		return nil, s.err
	}
	stat, ok := s.playerStats[playerID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return stat, nil
}

func (s *fakeStore) ListTopPlayers(_ context.Context, _ string, limit int) ([]models.PlayerPvPStat, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.topPlayers) {
		return s.topPlayers[:limit], nil
	}
	return s.topPlayers, nil
}

func (s *fakeStore) GetGuildStats(_ context.Context, guildID string) (*models.GuildPvPStat, error) {
	if s.err != nil {
		return nil, s.err
	}
	stat, ok := s.guildStats[guildID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return stat, nil
}

func (s *fakeStore) GetLatestGuildSnapshot(_ context.Context, _ string) (*models.GuildSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.guildSnapshot == nil {
		return nil, database.ErrNotFound
	}
	return s.guildSnapshot, nil
}

func (s *fakeStore) ListGuildSnapshots(_ context.Context, _ string, _ int) ([]models.GuildSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.guildSnapshots, nil
}

func (s *fakeStore) ListLatestGuildMembers(_ context.Context, _ string) ([]models.GuildMember, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.guildMembers, nil
}

func (s *fakeStore) ListGuildBattles(_ context.Context, _ string, _ int) ([]models.GuildBattle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.guildBattles, nil
}

func (s *fakeStore) ListGuildRankings(_ context.Context, _ string, _ int) ([]models.GuildRanking, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.guildRankings, nil
}

func (s *fakeStore) GetMetaBuild(_ context.Context, fingerprint string) (*models.MetaBuild, error) {
	if s.err != nil {
		return nil, s.err
	}
	build, ok := s.builds[fingerprint]
	if !ok {
		return nil, database.ErrNotFound
	}
	return build, nil
}

func (s *fakeStore) ListMetaBuilds(_ context.Context, _ bool, _, _ int) ([]models.MetaBuild, error) {
	s.listBuildCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.buildList, nil
}

func (s *fakeStore) CountMetaBuilds(_ context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.buildCount, nil
}

func (s *fakeStore) GetKillEventByEventID(_ context.Context, eventID int64) (*models.KillEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	event, ok := s.events[eventID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return event, nil
}

func (s *fakeStore) ListKillEvents(_ context.Context, f database.EventFilter) ([]models.KillEvent, error) {
	s.gotFilter = f
	if s.err != nil {
		return nil, s.err
	}
	return s.eventList, nil
}

func (s *fakeStore) GetBattleByBattleID(_ context.Context, battleID int64) (*models.Battle, error) {
	if s.err != nil {
		return nil, s.err
	}
	battle, ok := s.battles[battleID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return battle, nil
}

func (s *fakeStore) ListBattles(_ context.Context, _, _ int) ([]models.Battle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.battleList, nil
}

func (s *fakeStore) CountBattles(_ context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.battleCount, nil
}

func (s *fakeStore) GetSyncRun(_ context.Context, id uuid.UUID) (*models.SyncRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return run, nil
}

func (s *fakeStore) ListSyncRuns(_ context.Context, _ string, _, _ int) ([]models.SyncRun, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.runList, nil
}

func (s *fakeStore) ListAuditEvents(_ context.Context, _ string, _, _ int) ([]models.AuditEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.auditEvents, nil
}

type fakeIngest struct {
	running  bool
	inFlight bool
	lastRun  time.Time
	run      *models.SyncRun
	err      error
	gotOpts  ingest.RunOptions
}

func (f *fakeIngest) Running() bool          { return f.running }
func (f *fakeIngest) RunInFlight() bool      { return f.inFlight }
func (f *fakeIngest) LastRunTime() time.Time { return f.lastRun }

func (f *fakeIngest) TriggerRun(_ context.Context, opts ingest.RunOptions) (*models.SyncRun, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

type fakeBuilds struct {
	running    bool
	inFlight   bool
	lastRun    time.Time
	run        *models.SyncRun
	err        error
	gotTrigger string
}

func (f *fakeBuilds) Running() bool          { return f.running }
func (f *fakeBuilds) RunInFlight() bool      { return f.inFlight }
func (f *fakeBuilds) LastRunTime() time.Time { return f.lastRun }

func (f *fakeBuilds) TriggerRun(_ context.Context, trigger string) (*models.SyncRun, error) {
	f.gotTrigger = trigger
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

type fakeGuildSync struct {
	running  bool
	inFlight bool
	lastRun  time.Time
	run      *models.SyncRun
	err      error
	gotOpts  guildsync.RunOptions
}

func (f *fakeGuildSync) Running() bool          { return f.running }
func (f *fakeGuildSync) RunInFlight() bool      { return f.inFlight }
func (f *fakeGuildSync) LastRunTime() time.Time { return f.lastRun }

func (f *fakeGuildSync) TriggerRun(_ context.Context, opts guildsync.RunOptions) (*models.SyncRun, error) {
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

type fakeScheduler struct {
	jobs []scheduler.JobStatus
}

func (f *fakeScheduler) Snapshot() []scheduler.JobStatus { return f.jobs }

type fakeUpstream struct {
	state string
}

func (f *fakeUpstream) State() string { return f.state }

type fakePrices struct {
	prices       []upstream.MarketPrice
	err          error
	gotItems     []string
	gotLocations []string
}

func (f *fakePrices) FetchMarketPrices(_ context.Context, items, locations []string) ([]upstream.MarketPrice, error) {
	f.gotItems = items
	f.gotLocations = locations
	if f.err != nil {
		return nil, f.err
	}
	return f.prices, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ShutdownTimeout: time.Second,
		},
		Market:    config.MarketConfig{Enabled: true, MaxResults: 50},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"https://killboard.example"}},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 600, TriggerPerMinute: 60},
	}
}

// withURLParam injects a chi route parameter, standing in for the
// router in handler-level tests.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// newTestHandler builds a handler over the fake store with a fresh
// cache. Tests that need engines, prices or a scheduler construct
// their HandlerConfig directly.
func newTestHandler(t *testing.T, store *fakeStore) *Handler {
	t.Helper()
	c := cache.New(time.Minute)
	t.Cleanup(c.Close)
	return NewHandler(HandlerConfig{
		Store:       store,
		Config:      testConfig(),
		BuildsCache: c,
	})
}
