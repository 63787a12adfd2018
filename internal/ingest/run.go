// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
	"github.com/amerel/killboard/internal/validation"
)

// progressEvery controls how often run_progress is broadcast while
// working through a batch.
const progressEvery = 50

// executeRun performs one full ingestion run and records its outcome.
// It owns the run slot and releases it on exit.
func (m *Manager) executeRun(ctx context.Context, run *models.SyncRun, opts RunOptions) {
	defer m.wg.Done()
	defer m.releaseRunSlot()

	started := time.Now()
	report, runErr := m.ingest(ctx, run, opts)

	run.Fetched = report.Fetched()
	run.Inserted = report.Inserted()
	run.Duplicates = report.EventsDuplicate
	run.Errors = report.Errors()

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	run.Finish(errText)

	// The run context may already be canceled during shutdown; the
	// closing write uses a fresh context so the row never stays open.
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.FinishSyncRun(finishCtx, run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize sync run")
	}

	duration := time.Since(started)
	metrics.RecordRun(run.Kind, duration, runErr)
	metrics.RecordIngestReport(report.EventsFetched, report.EventsInserted, report.EventsDuplicate, report.EventErrors)
	metrics.CacheSize.WithLabelValues("dedup").Set(float64(m.dedup.Len()))

	m.mu.Lock()
	m.lastRun = started
	m.mu.Unlock()

	if m.hub != nil {
		m.hub.BroadcastRunCompleted(run)
	}
	if m.publisher != nil {
		m.publisher.PublishRunCompleted(run)
	}
	if m.auditor != nil {
		if runErr != nil {
			m.auditor.LogSyncFailed(run, errText)
		} else {
			m.auditor.LogSyncCompleted(run)
		}
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Bool("success", run.Success).
		Int("fetched", run.Fetched).
		Int("inserted", run.Inserted).
		Int("duplicates", run.Duplicates).
		Int("errors", run.Errors).
		Dur("duration", duration).
		Msg("Ingestion run finished")
}

// ingest fetches and stores kill events, then battles. A fetch failure
// fails the run; per-item failures only bump counters.
func (m *Manager) ingest(ctx context.Context, run *models.SyncRun, opts RunOptions) (Report, error) {
	var report Report

	m.broadcastProgress(run, &report, "fetching_events")

	events, err := m.fetcher.FetchKillEvents(ctx, opts.KillsTarget)
	if err != nil {
		return report, fmt.Errorf("failed to fetch kill events: %w", err)
	}
	report.EventsFetched = len(events)

	m.broadcastProgress(run, &report, "storing_events")
	for i := range events {
		m.processKillEvent(ctx, &events[i], &report)
		if (i+1)%progressEvery == 0 {
			m.broadcastProgress(run, &report, "storing_events")
		}
	}

	m.broadcastProgress(run, &report, "fetching_battles")

	battles, err := m.fetcher.FetchBattles(ctx, opts.BattleRange, opts.BattlesTarget)
	if err != nil {
		// Events fetched above are already committed; the run is
		// reported failed but keeps its event counters.
		return report, fmt.Errorf("failed to fetch battles: %w", err)
	}
	report.BattlesFetched = len(battles)

	m.broadcastProgress(run, &report, "storing_battles")
	for i := range battles {
		m.processBattle(ctx, &battles[i], &report)
	}

	m.broadcastStats(ctx, &report)

	return report, nil
}

// broadcastProgress mirrors the report counters into the run row and
// pushes a run_progress frame.
func (m *Manager) broadcastProgress(run *models.SyncRun, report *Report, stage string) {
	run.Fetched = report.Fetched()
	run.Inserted = report.Inserted()
	run.Duplicates = report.EventsDuplicate
	run.Errors = report.Errors()

	if m.hub != nil {
		m.hub.BroadcastRunProgress(run, stage)
	}
}

// broadcastStats pushes a stats_update frame after a run that changed data.
func (m *Manager) broadcastStats(ctx context.Context, report *Report) {
	if m.hub == nil || report.EventsInserted == 0 {
		return
	}
	total, err := m.store.CountKillEvents(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count kill events for stats broadcast")
		return
	}
	m.hub.BroadcastStatsUpdate(total, time.Now().UTC().Format(time.RFC3339))
}

// processKillEvent runs the per-event pipeline: dedup check, insert, then
// killer/victim player stats and their guild stats. Stat failures after a
// successful insert count as errors but do not undo the insert.
func (m *Manager) processKillEvent(ctx context.Context, dto *upstream.KillEvent, report *Report) {
	dedupKey := strconv.FormatInt(dto.EventID, 10)
	if m.dedup.Contains(dedupKey) {
		metrics.RecordCacheHit("dedup")
		report.EventsDuplicate++
		return
	}
	metrics.RecordCacheMiss("dedup")

	event, err := validation.NormalizeKillEvent(dto)
	if err != nil {
		report.EventErrors++
		logging.Warn().Err(err).Int64("event_id", dto.EventID).Msg("Skipping malformed kill event")
		return
	}

	exists, err := m.store.HasKillEvent(ctx, event.EventID)
	if err != nil {
		report.EventErrors++
		logging.Warn().Err(err).Int64("event_id", event.EventID).Msg("Dedup check failed, skipping event")
		return
	}
	if exists {
		m.dedup.Record(dedupKey)
		report.EventsDuplicate++
		return
	}

	if err := m.store.InsertKillEvent(ctx, event); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			// Lost the race against our own earlier insert (or a
			// previous deployment); same outcome as the dedup check.
			m.dedup.Record(dedupKey)
			report.EventsDuplicate++
			return
		}
		report.EventErrors++
		logging.Warn().Err(err).Int64("event_id", event.EventID).Msg("Failed to insert kill event")
		return
	}

	m.dedup.Record(dedupKey)
	report.EventsInserted++

	if err := m.applyKillerStats(ctx, event); err != nil {
		report.EventErrors++
		logging.Warn().Err(err).Str("player_id", event.Killer.PlayerID).Msg("Failed to update killer stats")
	}
	if err := m.applyVictimStats(ctx, event); err != nil {
		report.EventErrors++
		logging.Warn().Err(err).Str("player_id", event.Victim.PlayerID).Msg("Failed to update victim stats")
	}
	if event.Killer.GuildID != "" {
		if err := m.applyGuildKill(ctx, event); err != nil {
			report.EventErrors++
			logging.Warn().Err(err).Str("guild_id", event.Killer.GuildID).Msg("Failed to update killer guild stats")
		}
	}
	if event.Victim.GuildID != "" {
		if err := m.applyGuildDeath(ctx, event); err != nil {
			report.EventErrors++
			logging.Warn().Err(err).Str("guild_id", event.Victim.GuildID).Msg("Failed to update victim guild stats")
		}
	}

	if m.hub != nil {
		m.hub.BroadcastKillEvent(event)
	}
	if m.publisher != nil {
		m.publisher.PublishKillEvent(event)
	}
}

// loadOrNewPlayerStats returns the existing row or a fresh zero-counter
// one. Ingestion runs are serialized, so read-modify-write is safe here.
func (m *Manager) loadOrNewPlayerStats(ctx context.Context, playerID string) (*models.PlayerPvPStat, error) {
	stat, err := m.store.GetPlayerStats(ctx, playerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return &models.PlayerPvPStat{PlayerID: playerID}, nil
		}
		return nil, err
	}
	return stat, nil
}

func (m *Manager) applyKillerStats(ctx context.Context, event *models.KillEvent) error {
	stat, err := m.loadOrNewPlayerStats(ctx, event.Killer.PlayerID)
	if err != nil {
		return err
	}

	stat.PlayerName = event.Killer.Name
	stat.Kills++
	stat.TotalFame += event.TotalFame
	stat.KillFame += event.TotalFame
	stat.GamesPlayed++
	ts := event.Timestamp
	stat.LastKillAt = &ts

	return m.store.UpsertPlayerStats(ctx, stat)
}

func (m *Manager) applyVictimStats(ctx context.Context, event *models.KillEvent) error {
	stat, err := m.loadOrNewPlayerStats(ctx, event.Victim.PlayerID)
	if err != nil {
		return err
	}

	stat.PlayerName = event.Victim.Name
	stat.Deaths++
	stat.TotalFame += event.TotalFame
	stat.DeathFame += event.TotalFame
	stat.GamesPlayed++
	ts := event.Timestamp
	stat.LastDeathAt = &ts

	return m.store.UpsertPlayerStats(ctx, stat)
}

// loadOrNewGuildStats returns the existing row or a fresh one with the
// weekly and monthly windows anchored at now.
func (m *Manager) loadOrNewGuildStats(ctx context.Context, guildID string) (*models.GuildPvPStat, error) {
	stat, err := m.store.GetGuildStats(ctx, guildID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			now := time.Now().UTC()
			return &models.GuildPvPStat{
				GuildID:        guildID,
				WeekStartedAt:  now,
				MonthStartedAt: now,
			}, nil
		}
		return nil, err
	}
	return stat, nil
}

func (m *Manager) applyGuildKill(ctx context.Context, event *models.KillEvent) error {
	stat, err := m.loadOrNewGuildStats(ctx, event.Killer.GuildID)
	if err != nil {
		return err
	}

	stat.GuildName = event.Killer.GuildName
	stat.Kills++
	stat.WeeklyKills++
	stat.MonthlyKills++
	stat.KillFame += event.TotalFame

	return m.store.UpsertGuildStats(ctx, stat)
}

func (m *Manager) applyGuildDeath(ctx context.Context, event *models.KillEvent) error {
	stat, err := m.loadOrNewGuildStats(ctx, event.Victim.GuildID)
	if err != nil {
		return err
	}

	stat.GuildName = event.Victim.GuildName
	stat.Deaths++
	stat.WeeklyDeaths++
	stat.MonthlyDeaths++
	stat.DeathFame += event.TotalFame

	return m.store.UpsertGuildStats(ctx, stat)
}

// processBattle normalizes and upserts one battle summary.
func (m *Manager) processBattle(ctx context.Context, dto *upstream.Battle, report *Report) {
	battle, err := validation.NormalizeBattle(dto)
	if err != nil {
		report.BattleErrors++
		logging.Warn().Err(err).Int64("battle_id", dto.ID).Msg("Skipping malformed battle")
		return
	}

	if err := m.store.UpsertBattle(ctx, battle); err != nil {
		report.BattleErrors++
		logging.Warn().Err(err).Int64("battle_id", battle.BattleID).Msg("Failed to upsert battle")
		return
	}

	report.BattlesUpserted++
	metrics.BattlesUpserted.Inc()
}
