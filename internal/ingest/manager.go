// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/cache"
	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
)

// ErrRunInProgress is returned by TriggerRun while another run holds the
// slot. Callers map this to HTTP 409.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// ErrNotRunning is returned when the manager has not been started or was
// stopped.
var ErrNotRunning = errors.New("ingest manager is not running")

// dedupCacheTTL bounds how long an event id is remembered in process.
// The UNIQUE index on kill_events.event_id remains the authority; the
// cache only short-circuits the common overlap between adjacent runs.
const dedupCacheTTL = time.Hour

const dedupCacheSize = 8192

// Store is the persistence surface the ingestion engine needs.
// *database.DB satisfies it.
type Store interface {
	HasKillEvent(ctx context.Context, eventID int64) (bool, error)
	InsertKillEvent(ctx context.Context, event *models.KillEvent) error
	CountKillEvents(ctx context.Context) (int64, error)
	UpsertBattle(ctx context.Context, battle *models.Battle) error
	GetPlayerStats(ctx context.Context, playerID string) (*models.PlayerPvPStat, error)
	UpsertPlayerStats(ctx context.Context, stat *models.PlayerPvPStat) error
	GetGuildStats(ctx context.Context, guildID string) (*models.GuildPvPStat, error)
	UpsertGuildStats(ctx context.Context, stat *models.GuildPvPStat) error
	InsertSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Fetcher pulls pages from the upstream game API. Satisfied by
// *gameapi.Client and *gameapi.BreakerClient.
type Fetcher interface {
	FetchKillEvents(ctx context.Context, target int) ([]upstream.KillEvent, error)
	FetchBattles(ctx context.Context, timeRange string, target int) ([]upstream.Battle, error)
}

// Hub receives live updates for connected WebSocket clients.
// Implemented by *websocket.Hub.
type Hub interface {
	BroadcastKillEvent(event *models.KillEvent)
	BroadcastRunProgress(run *models.SyncRun, stage string)
	BroadcastRunCompleted(run *models.SyncRun)
	BroadcastStatsUpdate(totalEvents int64, lastEventAt string)
}

// Publisher mirrors inserted events onto the message bus.
// Implemented by *natspub.Publisher.
type Publisher interface {
	PublishKillEvent(event *models.KillEvent)
	PublishRunCompleted(run *models.SyncRun)
}

// AuditSink records run lifecycle events. Implemented by *audit.Logger.
type AuditSink interface {
	LogSyncTriggered(kind, trigger string, runID uuid.UUID)
	LogSyncCompleted(run *models.SyncRun)
	LogSyncFailed(run *models.SyncRun, reason string)
}

// RunOptions parameterize a single ingestion run. Zero values fall back
// to the configured defaults.
type RunOptions struct {
	KillsTarget   int
	BattlesTarget int
	BattleRange   string // day, week, or month
	Trigger       string // api, schedule, or startup
}

// Report carries per-source counters for one finished run.
type Report struct {
	EventsFetched   int
	EventsInserted  int
	EventsDuplicate int
	EventErrors     int

	BattlesFetched  int
	BattlesUpserted int
	BattleErrors    int
}

// Fetched returns the combined fetch count across sources.
func (r Report) Fetched() int { return r.EventsFetched + r.BattlesFetched }

// Inserted returns the combined insert/upsert count across sources.
func (r Report) Inserted() int { return r.EventsInserted + r.BattlesUpserted }

// Errors returns the combined per-item error count across sources.
func (r Report) Errors() int { return r.EventErrors + r.BattleErrors }

// Manager orchestrates ingestion runs from the upstream API into storage.
type Manager struct {
	store     Store
	fetcher   Fetcher
	cfg       *config.Config
	hub       Hub
	publisher Publisher
	auditor   AuditSink

	// dedup short-circuits event ids seen recently in this process.
	dedup *cache.DedupLRU

	mu          sync.RWMutex
	running     bool
	runInFlight bool
	lastRun     time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager wires an ingestion manager. hub, publisher and auditor may be
// nil; the corresponding side effects are skipped.
func NewManager(store Store, fetcher Fetcher, cfg *config.Config, hub Hub, publisher Publisher, auditor AuditSink) *Manager {
	m := &Manager{
		store:     store,
		fetcher:   fetcher,
		cfg:       cfg,
		hub:       hub,
		publisher: publisher,
		auditor:   auditor,
		dedup:     cache.NewDedupLRU(dedupCacheSize, dedupCacheTTL),
	}

	logging.Info().
		Bool("enabled", cfg.Ingest.Enabled).
		Int("kills_target", cfg.Ingest.KillsTarget).
		Int("battles_target", cfg.Ingest.BattlesTarget).
		Str("battle_range", cfg.Ingest.BattleRange).
		Msg("Ingest manager config loaded")

	return m
}

// Start marks the manager as accepting runs and, when ingestion is
// enabled, kicks off an initial run so a fresh deployment has data before
// the first scheduled tick.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("ingest manager is already running")
	}
	m.running = true
	m.runCtx, m.cancelRun = context.WithCancel(ctx)
	m.mu.Unlock()

	logging.Info().Msg("Starting ingest manager...")

	if m.cfg.Ingest.Enabled {
		if _, err := m.TriggerRun(ctx, RunOptions{Trigger: models.TriggerStartup}); err != nil {
			logging.Warn().Err(err).Msg("Initial ingestion run failed to start (will retry on schedule)")
		}
	}

	return nil
}

// Stop cancels any in-flight run and waits for it to record its outcome.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel := m.cancelRun
	m.mu.Unlock()

	logging.Info().Msg("Stopping ingest manager...")
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	logging.Info().Msg("Ingest manager stopped")

	return nil
}

// Running reports whether the manager accepts runs.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// RunInFlight reports whether a run currently holds the slot.
func (m *Manager) RunInFlight() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runInFlight
}

// LastRunTime returns the start time of the most recently finished run.
func (m *Manager) LastRunTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRun
}

// TriggerRun starts an ingestion run in the background and returns its
// sync_runs row. At most one run executes at a time; a second trigger
// while one is in flight returns ErrRunInProgress.
func (m *Manager) TriggerRun(ctx context.Context, opts RunOptions) (*models.SyncRun, error) {
	opts, err := m.normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, ErrNotRunning
	}
	if m.runInFlight {
		m.mu.Unlock()
		return nil, ErrRunInProgress
	}
	m.runInFlight = true
	runCtx := m.runCtx
	m.mu.Unlock()

	run := models.NewSyncRun(models.RunKindIngest, opts.Trigger)
	if err := m.store.InsertSyncRun(ctx, run); err != nil {
		m.releaseRunSlot()
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	if m.auditor != nil {
		m.auditor.LogSyncTriggered(run.Kind, opts.Trigger, run.ID)
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("trigger", opts.Trigger).
		Int("kills_target", opts.KillsTarget).
		Int("battles_target", opts.BattlesTarget).
		Str("battle_range", opts.BattleRange).
		Msg("Ingestion run started")

	m.wg.Add(1)
	go m.executeRun(runCtx, run, opts)

	return run, nil
}

// normalizeOptions fills defaults from config and validates the range.
func (m *Manager) normalizeOptions(opts RunOptions) (RunOptions, error) {
	if opts.KillsTarget <= 0 {
		opts.KillsTarget = m.cfg.Ingest.KillsTarget
	}
	if opts.KillsTarget <= 0 {
		opts.KillsTarget = 100
	}
	if opts.BattlesTarget < 0 {
		return RunOptions{}, fmt.Errorf("battles target must not be negative")
	}
	if opts.BattlesTarget == 0 {
		opts.BattlesTarget = m.cfg.Ingest.BattlesTarget
	}
	if opts.BattlesTarget <= 0 {
		opts.BattlesTarget = 50
	}
	if opts.BattleRange == "" {
		opts.BattleRange = m.cfg.Ingest.BattleRange
	}
	if opts.BattleRange == "" {
		opts.BattleRange = "day"
	}
	if opts.BattleRange != "day" && opts.BattleRange != "week" && opts.BattleRange != "month" {
		return RunOptions{}, fmt.Errorf("invalid battle range %q", opts.BattleRange)
	}
	if opts.Trigger == "" {
		opts.Trigger = models.TriggerAPI
	}
	return opts, nil
}

func (m *Manager) releaseRunSlot() {
	m.mu.Lock()
	m.runInFlight = false
	m.mu.Unlock()
}
