// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package builds

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/textmatch"
)

// ErrRunInProgress is returned by TriggerRun while another aggregation
// holds the slot. Callers map this to HTTP 409.
var ErrRunInProgress = errors.New("build aggregation already in progress")

// ErrNotRunning is returned when the aggregator has not been started or
// was stopped.
var ErrNotRunning = errors.New("build aggregator is not running")

// pageSize is the events-per-page chunk when scanning the corpus. It
// matches the storage layer's listing cap.
const pageSize = 1000

// Store is the persistence surface the aggregator needs. *database.DB
// satisfies it.
type Store interface {
	ListKillEvents(ctx context.Context, f database.EventFilter) ([]models.KillEvent, error)
	ReplaceMetaBuilds(ctx context.Context, builds []models.MetaBuild, batchSize int) (int, error)
	InsertSyncRun(ctx context.Context, run *models.SyncRun) error
	FinishSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Hub receives run lifecycle broadcasts. Implemented by *websocket.Hub.
type Hub interface {
	BroadcastRunProgress(run *models.SyncRun, stage string)
	BroadcastRunCompleted(run *models.SyncRun)
}

// ResponseCache is the slice of the API response cache the aggregator
// invalidates after rewriting the table. Implemented by *cache.Cache.
type ResponseCache interface {
	Clear()
}

// AuditSink records run lifecycle events. Implemented by *audit.Logger.
type AuditSink interface {
	LogSyncTriggered(kind, trigger string, runID uuid.UUID)
	LogSyncCompleted(run *models.SyncRun)
	LogSyncFailed(run *models.SyncRun, reason string)
}

// Aggregator recomputes meta builds from the stored kill event corpus.
type Aggregator struct {
	store   Store
	cfg     *config.Config
	hub     Hub
	cache   ResponseCache
	auditor AuditSink

	// matcher classifies healer weapons over the configured staff list.
	matcher *textmatch.Matcher

	mu          sync.RWMutex
	running     bool
	runInFlight bool
	lastRun     time.Time

	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// result carries the counters of one aggregation pass.
type result struct {
	eventsProcessed int
	buildsComputed  int
	rowsInserted    int
	failedRows      int
}

// NewAggregator wires a build aggregator. hub, cache and auditor may be
// nil; the corresponding side effects are skipped.
func NewAggregator(store Store, cfg *config.Config, hub Hub, cache ResponseCache, auditor AuditSink) *Aggregator {
	patterns := cfg.Builds.HealerWeapons
	if len(patterns) == 0 {
		patterns = config.DefaultHealerWeapons
	}

	a := &Aggregator{
		store:   store,
		cfg:     cfg,
		hub:     hub,
		cache:   cache,
		auditor: auditor,
		matcher: textmatch.NewMatcher(patterns),
	}

	logging.Info().
		Bool("enabled", cfg.Builds.Enabled).
		Int("max_events", cfg.Builds.MaxEvents).
		Int("min_sample_size", cfg.Builds.MinSampleSize).
		Int("healer_patterns", a.matcher.Patterns()).
		Msg("Build aggregator config loaded")

	return a
}

// Start marks the aggregator as accepting runs.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("build aggregator is already running")
	}
	a.running = true
	a.runCtx, a.cancelRun = context.WithCancel(ctx)

	logging.Info().Msg("Starting build aggregator...")
	return nil
}

// Stop cancels any in-flight aggregation and waits for it to record its
// outcome.
func (a *Aggregator) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrNotRunning
	}
	a.running = false
	cancel := a.cancelRun
	a.mu.Unlock()

	logging.Info().Msg("Stopping build aggregator...")
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
	logging.Info().Msg("Build aggregator stopped")

	return nil
}

// Running reports whether the aggregator accepts runs.
func (a *Aggregator) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// RunInFlight reports whether an aggregation currently holds the slot.
func (a *Aggregator) RunInFlight() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runInFlight
}

// LastRunTime returns the start time of the most recently finished run.
func (a *Aggregator) LastRunTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastRun
}

// TriggerRun starts an aggregation in the background and returns its
// sync_runs row. At most one aggregation executes at a time; a second
// trigger while one is in flight returns ErrRunInProgress.
func (a *Aggregator) TriggerRun(ctx context.Context, trigger string) (*models.SyncRun, error) {
	if trigger == "" {
		trigger = models.TriggerAPI
	}

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil, ErrNotRunning
	}
	if a.runInFlight {
		a.mu.Unlock()
		return nil, ErrRunInProgress
	}
	a.runInFlight = true
	runCtx := a.runCtx
	a.mu.Unlock()

	run := models.NewSyncRun(models.RunKindBuilds, trigger)
	if err := a.store.InsertSyncRun(ctx, run); err != nil {
		a.releaseRunSlot()
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	if a.auditor != nil {
		a.auditor.LogSyncTriggered(run.Kind, trigger, run.ID)
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("trigger", trigger).
		Msg("Build aggregation started")

	a.wg.Add(1)
	go a.executeRun(runCtx, run)

	return run, nil
}

func (a *Aggregator) releaseRunSlot() {
	a.mu.Lock()
	a.runInFlight = false
	a.mu.Unlock()
}

// executeRun performs one aggregation and records its outcome. It owns
// the run slot and releases it on exit.
func (a *Aggregator) executeRun(ctx context.Context, run *models.SyncRun) {
	defer a.wg.Done()
	defer a.releaseRunSlot()

	started := time.Now()
	res, runErr := a.aggregate(ctx, run)

	run.Fetched = res.eventsProcessed
	run.Inserted = res.rowsInserted
	run.Errors = res.failedRows

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	run.Finish(errText)

	// The run context may already be canceled during shutdown; the
	// closing write uses a fresh context so the row never stays open.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.FinishSyncRun(finishCtx, run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize sync run")
	}

	duration := time.Since(started)
	metrics.RecordRun(run.Kind, duration, runErr)
	if runErr == nil {
		metrics.BuildsComputed.Set(float64(res.buildsComputed))
	}

	a.mu.Lock()
	a.lastRun = started
	a.mu.Unlock()

	if a.hub != nil {
		a.hub.BroadcastRunCompleted(run)
	}
	if a.auditor != nil {
		if runErr != nil {
			a.auditor.LogSyncFailed(run, errText)
		} else {
			a.auditor.LogSyncCompleted(run)
		}
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Bool("success", run.Success).
		Int("events_processed", res.eventsProcessed).
		Int("builds_computed", res.buildsComputed).
		Int("rows_inserted", res.rowsInserted).
		Dur("duration", duration).
		Msg("Build aggregation finished")
}

// aggregate scans the corpus, derives the build set and swaps the table.
func (a *Aggregator) aggregate(ctx context.Context, run *models.SyncRun) (result, error) {
	var res result

	maxEvents := a.cfg.Builds.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 50000
	}
	minSample := int64(a.cfg.Builds.MinSampleSize)
	if minSample <= 0 {
		minSample = 3
	}
	batchSize := a.cfg.Builds.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	a.broadcastProgress(run, &res, "scanning_events")

	acc := make(map[string]*accumulator)
	offset := 0
	for res.eventsProcessed < maxEvents {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		limit := pageSize
		if remaining := maxEvents - res.eventsProcessed; remaining < limit {
			limit = remaining
		}

		events, err := a.store.ListKillEvents(ctx, database.EventFilter{Limit: limit, Offset: offset})
		if err != nil {
			return res, fmt.Errorf("failed to load kill events: %w", err)
		}
		if len(events) == 0 {
			break
		}

		for i := range events {
			a.accumulate(acc, &events[i])
		}
		res.eventsProcessed += len(events)
		offset += len(events)

		if len(events) < limit {
			break
		}
	}

	a.broadcastProgress(run, &res, "computing_builds")
	builds := a.compute(acc, res.eventsProcessed, minSample)
	res.buildsComputed = len(builds)

	a.broadcastProgress(run, &res, "replacing_builds")
	inserted, err := a.store.ReplaceMetaBuilds(ctx, builds, batchSize)
	if err != nil {
		return res, fmt.Errorf("failed to replace meta builds: %w", err)
	}
	res.rowsInserted = inserted
	res.failedRows = len(builds) - inserted

	if a.cache != nil {
		a.cache.Clear()
	}

	return res, nil
}

// accumulator collects raw counters for one fingerprint while scanning.
type accumulator struct {
	fp        Fingerprint
	kills     int64
	deaths    int64
	totalFame int64
	healer    bool
}

// accumulate folds one event into the working set: the killer's build
// earns a kill and the event's fame, the victim's build a death.
func (a *Aggregator) accumulate(acc map[string]*accumulator, event *models.KillEvent) {
	if fp, ok := FromEquipment(event.Killer.Equipment); ok {
		entry := a.entryFor(acc, fp)
		entry.kills++
		entry.totalFame += event.TotalFame
	}
	if fp, ok := FromEquipment(event.Victim.Equipment); ok {
		entry := a.entryFor(acc, fp)
		entry.deaths++
	}
}

func (a *Aggregator) entryFor(acc map[string]*accumulator, fp Fingerprint) *accumulator {
	key := fp.Key()
	entry, ok := acc[key]
	if !ok {
		entry = &accumulator{
			fp:     fp,
			healer: a.matcher.Contains(fp.Weapon),
		}
		acc[key] = entry
	}
	return entry
}

// compute turns accumulators into rows, dropping builds below the sample
// floor. Rates are relative to the corpus scanned in this run.
func (a *Aggregator) compute(acc map[string]*accumulator, totalEvents int, minSample int64) []models.MetaBuild {
	if totalEvents == 0 {
		return nil
	}

	now := time.Now().UTC()
	builds := make([]models.MetaBuild, 0, len(acc))
	for key, entry := range acc {
		sample := entry.kills + entry.deaths
		if sample < minSample {
			continue
		}

		avgFame := 0.0
		if entry.kills > 0 {
			avgFame = float64(entry.totalFame) / float64(entry.kills)
		}

		builds = append(builds, models.MetaBuild{
			Fingerprint: key,
			Weapon:      entry.fp.Weapon,
			Head:        entry.fp.Head,
			Armor:       entry.fp.Armor,
			Shoes:       entry.fp.Shoes,
			Cape:        entry.fp.Cape,
			Kills:       entry.kills,
			Deaths:      entry.deaths,
			WinRate:     float64(entry.kills) / float64(sample),
			Popularity:  float64(sample) / float64(totalEvents),
			AvgFame:     avgFame,
			SampleSize:  sample,
			IsHealer:    entry.healer,
			ComputedAt:  now,
		})
	}

	// Map iteration order is randomized; keep insert batches deterministic.
	sort.Slice(builds, func(i, j int) bool {
		if builds[i].SampleSize != builds[j].SampleSize {
			return builds[i].SampleSize > builds[j].SampleSize
		}
		return builds[i].Fingerprint < builds[j].Fingerprint
	})

	return builds
}

// broadcastProgress mirrors the counters into the run row and pushes a
// run_progress frame.
func (a *Aggregator) broadcastProgress(run *models.SyncRun, res *result, stage string) {
	run.Fetched = res.eventsProcessed
	run.Inserted = res.rowsInserted
	run.Errors = res.failedRows

	if a.hub != nil {
		a.hub.BroadcastRunProgress(run, stage)
	}
}
