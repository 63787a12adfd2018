// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/guildsync"
	"github.com/amerel/killboard/internal/ingest"
	"github.com/amerel/killboard/internal/middleware"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
	"github.com/amerel/killboard/internal/scheduler"
	"github.com/amerel/killboard/internal/websocket"
)

// Store is the read surface the handlers need. Satisfied by
// *database.DB.
type Store interface {
	Ping(ctx context.Context) error
	GetRecordCounts(ctx context.Context) (database.RecordCounts, error)

	GetPlayerStats(ctx context.Context, playerID string) (*models.PlayerPvPStat, error)
	ListTopPlayers(ctx context.Context, by string, limit int) ([]models.PlayerPvPStat, error)

	GetGuildStats(ctx context.Context, guildID string) (*models.GuildPvPStat, error)
	GetLatestGuildSnapshot(ctx context.Context, guildID string) (*models.GuildSnapshot, error)
	ListGuildSnapshots(ctx context.Context, guildID string, limit int) ([]models.GuildSnapshot, error)
	ListLatestGuildMembers(ctx context.Context, guildID string) ([]models.GuildMember, error)
	ListGuildBattles(ctx context.Context, guildID string, limit int) ([]models.GuildBattle, error)
	ListGuildRankings(ctx context.Context, timeRange string, limit int) ([]models.GuildRanking, error)

	GetMetaBuild(ctx context.Context, fingerprint string) (*models.MetaBuild, error)
	ListMetaBuilds(ctx context.Context, healerOnly bool, limit, offset int) ([]models.MetaBuild, error)
	CountMetaBuilds(ctx context.Context) (int64, error)

	GetKillEventByEventID(ctx context.Context, eventID int64) (*models.KillEvent, error)
	ListKillEvents(ctx context.Context, f database.EventFilter) ([]models.KillEvent, error)

	GetBattleByBattleID(ctx context.Context, battleID int64) (*models.Battle, error)
	ListBattles(ctx context.Context, limit, offset int) ([]models.Battle, error)
	CountBattles(ctx context.Context) (int64, error)

	GetSyncRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, kind string, limit, offset int) ([]models.SyncRun, error)

	ListAuditEvents(ctx context.Context, eventType string, limit, offset int) ([]models.AuditEvent, error)
}

// IngestEngine is the trigger surface of the ingestion manager.
type IngestEngine interface {
	Running() bool
	RunInFlight() bool
	LastRunTime() time.Time
	TriggerRun(ctx context.Context, opts ingest.RunOptions) (*models.SyncRun, error)
}

// BuildsEngine is the trigger surface of the build aggregator.
type BuildsEngine interface {
	Running() bool
	RunInFlight() bool
	LastRunTime() time.Time
	TriggerRun(ctx context.Context, trigger string) (*models.SyncRun, error)
}

// GuildSyncEngine is the trigger surface of the guild sync engine.
type GuildSyncEngine interface {
	Running() bool
	RunInFlight() bool
	LastRunTime() time.Time
	TriggerRun(ctx context.Context, opts guildsync.RunOptions) (*models.SyncRun, error)
}

// JobScheduler exposes the cron schedule for the status endpoint.
type JobScheduler interface {
	Snapshot() []scheduler.JobStatus
}

// UpstreamStatus reports the circuit breaker state of the game API
// client.
type UpstreamStatus interface {
	State() string
}

// PriceFetcher pulls current market prices when a scan request names
// items instead of carrying price entries.
type PriceFetcher interface {
	FetchMarketPrices(ctx context.Context, items, locations []string) ([]upstream.MarketPrice, error)
}

// Handler serves every killboard endpoint. Optional dependencies are
// nil-checked per endpoint: a Handler without a hub still serves the
// read API, it just refuses WebSocket upgrades.
type Handler struct {
	store       Store
	cfg         *config.Config
	ingest      IngestEngine
	builds      BuildsEngine
	guildSync   GuildSyncEngine
	scheduler   JobScheduler
	upstream    UpstreamStatus
	prices      PriceFetcher
	hub         *websocket.Hub
	buildsCache *cache.Cache
	perf        *middleware.PerformanceMonitor
	startedAt   time.Time
}

// HandlerConfig carries the handler dependencies.
type HandlerConfig struct {
	Store     Store
	Config    *config.Config
	Ingest    IngestEngine
	Builds    BuildsEngine
	GuildSync GuildSyncEngine
	Scheduler JobScheduler
	Upstream  UpstreamStatus
	Prices    PriceFetcher
	Hub       *websocket.Hub

	// BuildsCache is shared with the build aggregator, which clears it
	// after rewriting the meta_builds table.
	BuildsCache *cache.Cache

	// Perf feeds the status endpoint; the router also mounts its
	// middleware.
	Perf *middleware.PerformanceMonitor
}

// NewHandler wires a handler from its dependencies.
func NewHandler(hc HandlerConfig) *Handler {
	return &Handler{
		store:       hc.Store,
		cfg:         hc.Config,
		ingest:      hc.Ingest,
		builds:      hc.Builds,
		guildSync:   hc.GuildSync,
		scheduler:   hc.Scheduler,
		upstream:    hc.Upstream,
		prices:      hc.Prices,
		hub:         hc.Hub,
		buildsCache: hc.BuildsCache,
		perf:        hc.Perf,
		startedAt:   time.Now().UTC(),
	}
}
