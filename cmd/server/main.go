// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package main is the entry point for the killboard server.
//
// Killboard ingests kill events and battles from an upstream game-data
// API, maintains player and guild PvP statistics, aggregates equipment
// fingerprints into meta build rankings, snapshots guild rosters, and
// serves everything over a REST and WebSocket API backed by DuckDB.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, KILLBOARD_* env (Koanf v2)
//  2. Database: DuckDB with the killboard schema
//  3. Audit: persistent audit trail with retention cleanup
//  4. WebSocket hub: live kill feed and run progress broadcasts
//  5. NATS (optional): fire-and-forget event mirroring
//  6. Engines: ingest manager, build aggregator, guild sync engine
//  7. Scheduler: cron jobs driving the engines
//  8. HTTP server: REST API plus /ws, /health and /metrics
//
// Everything long-running is handed to a suture supervisor tree; main
// only wires dependencies and waits for the tree to stop.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (KILLBOARD_* prefix)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// For token authorization on trigger endpoints:
//   - KILLBOARD_AUTH_MODE=token
//   - KILLBOARD_AUTH_SYNC_TOKEN: shared secret, 16+ characters
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections and drains in-flight requests
//   - Cancels any in-flight ingestion or aggregation run
//   - Flushes a final DuckDB checkpoint
//   - Closes the NATS connection and the audit logger
//
// # Example Usage
//
// Development with no authorization:
//
//	export KILLBOARD_AUTH_MODE=none
//	export KILLBOARD_DATABASE_PATH=killboard.db
//	./killboard
//
// Production with token auth and NATS mirroring:
//
//	export KILLBOARD_AUTH_MODE=token
//	export KILLBOARD_AUTH_SYNC_TOKEN=$(openssl rand -hex 24)
//	export KILLBOARD_NATS_ENABLED=true
//	export KILLBOARD_NATS_URL=nats://nats:4222
//	./killboard
package main

import (
	"context"
	"errors"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/amerel/killboard/internal/api"
	"github.com/amerel/killboard/internal/audit"
	"github.com/amerel/killboard/internal/auth"
	"github.com/amerel/killboard/internal/builds"
	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/gameapi"
	"github.com/amerel/killboard/internal/guildsync"
	"github.com/amerel/killboard/internal/ingest"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/middleware"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/natspub"
	"github.com/amerel/killboard/internal/scheduler"
	"github.com/amerel/killboard/internal/supervisor"
	"github.com/amerel/killboard/internal/supervisor/services"
	ws "github.com/amerel/killboard/internal/websocket"
)

// version is stamped via -ldflags at release time.
var version = "dev"

// checkpointInterval is how often the data layer flushes the DuckDB WAL.
const checkpointInterval = 15 * time.Minute

// statsInterval is how often the process-level gauges are refreshed.
const statsInterval = 30 * time.Second

// buildsCacheTTL backstops the shared builds response cache. The
// aggregator clears the cache after every rewrite, so entries rarely
// live this long.
const buildsCacheTTL = 5 * time.Minute

// perfWindowSize is the latency sample window behind the status endpoint.
const perfWindowSize = 2048

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", version).
		Str("upstream", cfg.Upstream.BaseURL).
		Str("db_path", cfg.Database.Path).
		Str("auth_mode", cfg.Auth.Mode).
		Msg("Starting killboard")
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Root context for everything the supervisor runs. Canceled on
	// SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Audit trail. The logger buffers writes; the cleanup routine
	// enforces retention in the background.
	var auditLogger *audit.Logger
	if cfg.Audit.Enabled {
		auditCfg := audit.DefaultConfig()
		if cfg.Audit.RetentionDays > 0 {
			auditCfg.RetentionDays = cfg.Audit.RetentionDays
		}
		auditLogger = audit.NewLogger(db, auditCfg)
		defer func() {
			if err := auditLogger.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing audit logger")
			}
		}()
		auditLogger.StartCleanupRoutine(ctx)
		logging.Info().Int("retention_days", auditCfg.RetentionDays).Msg("Audit logging enabled")
	} else {
		logging.Info().Msg("Audit logging disabled")
	}

	// WebSocket hub for the live kill feed. Created before the engines
	// so they can broadcast run progress.
	var hub *ws.Hub
	if cfg.WebSocket.Enabled {
		hub = ws.NewHub()
	} else {
		logging.Info().Msg("WebSocket broadcasting disabled")
	}

	// Optional NATS mirroring. The publisher is fire-and-forget and has
	// no serve loop, so main owns its lifetime rather than the tree.
	publisher, err := natspub.New(&cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer publisher.Close()

	// Upstream client behind a circuit breaker so a flapping game API
	// fails fast instead of stalling every run.
	upstreamClient := gameapi.NewBreakerClient(gameapi.New(&cfg.Upstream))
	if err := upstreamClient.Ping(ctx); err != nil {
		logging.Warn().Err(err).Msg("Upstream game API unreachable (runs will retry)")
	} else {
		logging.Info().Msg("Upstream game API reachable")
	}

	// The builds cache is shared between the API handler and the
	// aggregator, which clears it after rewriting meta_builds.
	buildsCache := cache.New(buildsCacheTTL)
	defer buildsCache.Close()

	// The engines nil-check their optional interfaces, so a disabled
	// hub or audit logger must arrive as an untyped nil, not a typed
	// nil pointer wrapped in a non-nil interface. The NATS publisher is
	// exempt: its methods are nil-receiver safe.
	var (
		ingestHub ingest.Hub
		buildsHub builds.Hub
		guildHub  guildsync.Hub
	)
	if hub != nil {
		ingestHub, buildsHub, guildHub = hub, hub, hub
	}
	var (
		ingestAudit ingest.AuditSink
		buildsAudit builds.AuditSink
		guildAudit  guildsync.AuditSink
		authAudit   auth.AuditSink
	)
	if auditLogger != nil {
		ingestAudit, buildsAudit, guildAudit, authAudit = auditLogger, auditLogger, auditLogger, auditLogger
	}

	ingestMgr := ingest.NewManager(db, upstreamClient, cfg, ingestHub, publisher, ingestAudit)
	buildAgg := builds.NewAggregator(db, cfg, buildsHub, buildsCache, buildsAudit)
	guildEngine := guildsync.NewEngine(db, upstreamClient, cfg, guildHub, guildAudit)

	guard, err := auth.NewGuard(cfg.Auth, authAudit)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to configure auth guard")
	}

	// Cron jobs drive the engines on their configured schedules. An
	// empty schedule leaves the engine manual-trigger only.
	cron := scheduler.New()
	registerJob(cron, "ingest", cfg.Ingest.Schedule, cfg.Ingest.Enabled, func(ctx context.Context) error {
		_, err := ingestMgr.TriggerRun(ctx, ingest.RunOptions{Trigger: models.TriggerSchedule})
		return err
	})
	registerJob(cron, "builds", cfg.Builds.Schedule, cfg.Builds.Enabled, func(ctx context.Context) error {
		_, err := buildAgg.TriggerRun(ctx, models.TriggerSchedule)
		return err
	})
	registerJob(cron, "guildsync", cfg.GuildSync.Schedule, cfg.GuildSync.Enabled, func(ctx context.Context) error {
		_, err := guildEngine.TriggerRun(ctx, guildsync.RunOptions{Trigger: models.TriggerSchedule})
		return err
	})

	perf := middleware.NewPerformanceMonitor(perfWindowSize)

	handler := api.NewHandler(api.HandlerConfig{
		Store:       db,
		Config:      cfg,
		Ingest:      ingestMgr,
		Builds:      buildAgg,
		GuildSync:   guildEngine,
		Scheduler:   cron,
		Upstream:    upstreamClient,
		Prices:      upstreamClient,
		Hub:         hub,
		BuildsCache: buildsCache,
		Perf:        perf,
	})

	router := api.NewRouter(handler, guard, cfg, perf)
	server := api.NewServer(cfg.Server, router.Setup())

	// === SUPERVISOR TREE ===

	treeCfg := supervisor.DefaultTreeConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)

	// Data layer: periodic DuckDB checkpointing keeps the WAL small, and
	// the stats sampler feeds the uptime/pool/cache gauges.
	tree.AddDataService(services.NewCheckpointService(db, checkpointInterval))
	tree.AddDataService(services.NewStatsService(db.Conn(),
		map[string]services.EntryCounter{"builds": buildsCache}, statsInterval))

	// Messaging layer: hub, engines, scheduler.
	if hub != nil {
		tree.AddMessagingService(services.NewHubService(hub))
	}
	tree.AddMessagingService(services.NewEngineService("ingest-manager", ingestMgr))
	tree.AddMessagingService(services.NewEngineService("build-aggregator", buildAgg))
	tree.AddMessagingService(services.NewEngineService("guildsync-engine", guildEngine))
	tree.AddMessagingService(services.NewSchedulerService(cron))

	// API layer.
	tree.AddAPIService(services.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Killboard stopped gracefully")
}

// registerJob registers one cron job, skipping disabled engines and
// empty schedules.
func registerJob(cron *scheduler.Scheduler, name, schedule string, enabled bool, run func(ctx context.Context) error) {
	if !enabled || schedule == "" {
		logging.Info().Str("job", name).Msg("Scheduled job disabled")
		return
	}
	if err := cron.Register(scheduler.Job{Name: name, Schedule: schedule, Run: run}); err != nil {
		logging.Fatal().Err(err).Str("job", name).Str("schedule", schedule).Msg("Failed to register job")
	}
	logging.Info().Str("job", name).Str("schedule", schedule).Msg("Scheduled job registered")
}
