// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package guildsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
)

// ErrRunInProgress is returned by TriggerRun while another run holds the
// slot. Callers map this to HTTP 409.
var ErrRunInProgress = errors.New("guild sync already in progress")

// ErrNotRunning is returned when the engine has not been started or was
// stopped.
var ErrNotRunning = errors.New("guild sync engine is not running")

// Per-guild pipeline states, broadcast to WebSocket clients as the run
// progresses.
const (
	StateQueued          = "queued"
	StateFetchingProfile = "fetching_profile"
	StateFetchingMembers = "fetching_members"
	StateFetchingBattles = "fetching_battles"
	StateDone            = "done"
	StateFailed          = "failed"
)

// leaderboardRanges are the time windows synced per run when no explicit
// range is requested.
var leaderboardRanges = []string{"day", "week", "month"}

// Store is the persistence surface the guild sync engine needs.
// *database.DB satisfies it.
type Store interface {
	InsertGuildRankings(ctx context.Context, rankings []models.GuildRanking) error
	InsertGuildSnapshot(ctx context.Context, snapshot *models.GuildSnapshot) error
	InsertGuildMembers(ctx context.Context, members []models.GuildMember) error
	InsertGuildBattles(ctx context.Context, battles []models.GuildBattle) error
	ListKillEvents(ctx context.Context, filter database.EventFilter) ([]models.KillEvent, error)
	InsertSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Fetcher pulls guild data from the upstream game API. Satisfied by
// *gameapi.Client and *gameapi.BreakerClient.
type Fetcher interface {
	FetchGuildFameLeaderboard(ctx context.Context, timeRange string, target int) ([]upstream.GuildFameEntry, error)
	GetGuild(ctx context.Context, guildID string) (*upstream.Guild, error)
	GetGuildMembers(ctx context.Context, guildID string) ([]upstream.GuildMember, error)
}

// Hub receives live updates for connected WebSocket clients.
// Implemented by *websocket.Hub.
type Hub interface {
	BroadcastRunProgress(run *models.SyncRun, stage string)
	BroadcastRunCompleted(run *models.SyncRun)
	BroadcastGuildState(guildID, guildName, state, errText string)
}

// AuditSink records run lifecycle events. Implemented by *audit.Logger.
type AuditSink interface {
	LogSyncTriggered(kind, trigger string, runID uuid.UUID)
	LogSyncCompleted(run *models.SyncRun)
	LogSyncFailed(run *models.SyncRun, reason string)
}

// RunOptions parameterize a single sync run. An empty Range syncs all
// three leaderboard windows.
type RunOptions struct {
	Range   string // day, week, month, or empty for all
	Trigger string // api, schedule, or startup
}

// Report carries per-phase counters for one finished run.
type Report struct {
	RankingsFetched  int
	RankingsInserted int
	RankingErrors    int

	GuildsQueued int
	GuildsDone   int
	GuildsFailed int

	SnapshotsInserted int
	MembersInserted   int
	BattlesInserted   int
}

// Fetched returns leaderboard entries pulled plus guilds queued for the
// per-guild pipeline.
func (r Report) Fetched() int { return r.RankingsFetched + r.GuildsQueued }

// Inserted returns the combined row count written across phases.
func (r Report) Inserted() int {
	return r.RankingsInserted + r.SnapshotsInserted + r.MembersInserted + r.BattlesInserted
}

// Errors returns malformed leaderboard entries plus failed guilds.
func (r Report) Errors() int { return r.RankingErrors + r.GuildsFailed }

// Engine orchestrates guild sync runs: leaderboard rankings first, then
// a concurrent per-guild pipeline.
type Engine struct {
	store   Store
	fetcher Fetcher
	cfg     *config.Config
	hub     Hub
	auditor AuditSink

	mu          sync.RWMutex
	running     bool
	runInFlight bool
	lastRun     time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewEngine wires a guild sync engine. hub and auditor may be nil; the
// corresponding side effects are skipped.
func NewEngine(store Store, fetcher Fetcher, cfg *config.Config, hub Hub, auditor AuditSink) *Engine {
	e := &Engine{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg,
		hub:     hub,
		auditor: auditor,
	}

	logging.Info().
		Bool("enabled", cfg.GuildSync.Enabled).
		Int("max_guilds", cfg.GuildSync.MaxGuilds).
		Int("workers", cfg.GuildSync.Workers).
		Int("leaderboard_size", cfg.GuildSync.LeaderboardSize).
		Msg("Guild sync engine config loaded")

	return e
}

// Start marks the engine as accepting runs.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("guild sync engine is already running")
	}
	e.running = true
	e.runCtx, e.cancelRun = context.WithCancel(ctx)
	e.mu.Unlock()

	logging.Info().Msg("Starting guild sync engine...")
	return nil
}

// Stop cancels any in-flight run and waits for it to record its outcome.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	e.running = false
	cancel := e.cancelRun
	e.mu.Unlock()

	logging.Info().Msg("Stopping guild sync engine...")
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	logging.Info().Msg("Guild sync engine stopped")

	return nil
}

// Running reports whether the engine accepts runs.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunInFlight reports whether a run currently holds the slot.
func (e *Engine) RunInFlight() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runInFlight
}

// LastRunTime returns the start time of the most recently finished run.
func (e *Engine) LastRunTime() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// TriggerRun starts a guild sync run in the background and returns its
// sync_runs row. At most one run executes at a time; a second trigger
// while one is in flight returns ErrRunInProgress.
func (e *Engine) TriggerRun(ctx context.Context, opts RunOptions) (*models.SyncRun, error) {
	opts, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	if e.runInFlight {
		e.mu.Unlock()
		return nil, ErrRunInProgress
	}
	e.runInFlight = true
	runCtx := e.runCtx
	e.mu.Unlock()

	run := models.NewSyncRun(models.RunKindGuildSync, opts.Trigger)
	if err := e.store.InsertSyncRun(ctx, run); err != nil {
		e.releaseRunSlot()
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	if e.auditor != nil {
		e.auditor.LogSyncTriggered(run.Kind, opts.Trigger, run.ID)
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("trigger", opts.Trigger).
		Str("range", opts.Range).
		Msg("Guild sync run started")

	e.wg.Add(1)
	go e.executeRun(runCtx, run, opts)

	return run, nil
}

// normalizeOptions validates the requested range and fills the trigger.
func normalizeOptions(opts RunOptions) (RunOptions, error) {
	switch opts.Range {
	case "", "day", "week", "month":
	default:
		return RunOptions{}, fmt.Errorf("invalid leaderboard range %q", opts.Range)
	}
	if opts.Trigger == "" {
		opts.Trigger = models.TriggerAPI
	}
	return opts, nil
}

func (e *Engine) releaseRunSlot() {
	e.mu.Lock()
	e.runInFlight = false
	e.mu.Unlock()
}
