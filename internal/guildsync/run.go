// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package guildsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/validation"
)

// guildRef identifies one guild queued for the per-guild pipeline. The
// name comes from the leaderboard and may lag a recent rename; the
// profile fetch is the authority.
type guildRef struct {
	ID   string
	Name string
}

// guildOutcome counts what one guild's pipeline landed.
type guildOutcome struct {
	done     bool
	snapshot bool
	members  int
	battles  int
}

// executeRun performs one full guild sync run and records its outcome.
// It owns the run slot and releases it on exit.
func (e *Engine) executeRun(ctx context.Context, run *models.SyncRun, opts RunOptions) {
	defer e.wg.Done()
	defer e.releaseRunSlot()

	started := time.Now()
	report, runErr := e.sync(ctx, run, opts)

	run.Fetched = report.Fetched()
	run.Inserted = report.Inserted()
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
	if err := e.store.FinishSyncRun(finishCtx, run); err != nil {
		logging.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize sync run")
	}

	duration := time.Since(started)
	metrics.RecordRun(run.Kind, duration, runErr)

	e.mu.Lock()
	e.lastRun = started
	e.mu.Unlock()

	if e.hub != nil {
		e.hub.BroadcastRunCompleted(run)
	}
	if e.auditor != nil {
		if runErr != nil {
			e.auditor.LogSyncFailed(run, errText)
		} else {
			e.auditor.LogSyncCompleted(run)
		}
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Bool("success", run.Success).
		Int("rankings_inserted", report.RankingsInserted).
		Int("guilds_done", report.GuildsDone).
		Int("guilds_failed", report.GuildsFailed).
		Int("inserted", run.Inserted).
		Dur("duration", duration).
		Msg("Guild sync run finished")
}

// sync pulls the fame leaderboards, stores the rankings, and then walks
// every ranked guild through the per-guild pipeline on a worker pool.
// A leaderboard failure fails the run; a single guild's failure does not.
func (e *Engine) sync(ctx context.Context, run *models.SyncRun, opts RunOptions) (Report, error) {
	var report Report

	// One capture timestamp groups everything this run wrote, so readers
	// can reassemble a consistent view per capture.
	capturedAt := time.Now().UTC()

	ranges := leaderboardRanges
	if opts.Range != "" {
		ranges = []string{opts.Range}
	}

	target := e.cfg.GuildSync.LeaderboardSize
	if target <= 0 {
		target = 20
	}

	e.broadcastProgress(run, &report, "fetching_rankings")

	queue := make([]guildRef, 0, target)
	seen := make(map[string]bool)

	for _, rng := range ranges {
		entries, err := e.fetcher.FetchGuildFameLeaderboard(ctx, rng, target)
		if err != nil {
			return report, fmt.Errorf("failed to fetch %s guild leaderboard: %w", rng, err)
		}
		report.RankingsFetched += len(entries)

		rankings := make([]models.GuildRanking, 0, len(entries))
		for i := range entries {
			ranking, err := validation.NormalizeGuildFameEntry(&entries[i], rng, i+1, capturedAt)
			if err != nil {
				report.RankingErrors++
				logging.Warn().Err(err).Str("range", rng).Int("rank", i+1).Msg("Skipping malformed leaderboard entry")
				continue
			}
			rankings = append(rankings, *ranking)

			if !seen[ranking.GuildID] {
				seen[ranking.GuildID] = true
				queue = append(queue, guildRef{ID: ranking.GuildID, Name: ranking.GuildName})
			}
		}

		if err := e.store.InsertGuildRankings(ctx, rankings); err != nil {
			return report, fmt.Errorf("failed to insert %s guild rankings: %w", rng, err)
		}
		report.RankingsInserted += len(rankings)

		e.broadcastProgress(run, &report, "fetching_rankings")
	}

	// The queue keeps leaderboard order, shortest range first, so the cap
	// favors guilds currently active over all-time heavyweights.
	maxGuilds := e.cfg.GuildSync.MaxGuilds
	if maxGuilds <= 0 {
		maxGuilds = 40
	}
	if len(queue) > maxGuilds {
		queue = queue[:maxGuilds]
	}
	report.GuildsQueued = len(queue)

	if len(queue) == 0 {
		return report, nil
	}

	e.broadcastProgress(run, &report, "syncing_guilds")
	e.syncGuilds(ctx, run, &report, queue, capturedAt)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// syncGuilds fans the queue out over a bounded worker pool. Guilds are
// independent: no ordering between them, and one failure never stops
// another guild's pipeline.
func (e *Engine) syncGuilds(ctx context.Context, run *models.SyncRun, report *Report, queue []guildRef, capturedAt time.Time) {
	workers := e.cfg.GuildSync.Workers
	if workers <= 0 {
		workers = 8
	}

	pool := pond.NewPool(workers, pond.WithQueueSize(len(queue)))
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	var mu sync.Mutex
	for _, ref := range queue {
		ref := ref
		e.broadcastGuildState(ref.ID, ref.Name, StateQueued, "")
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}
			outcome := e.syncGuild(groupCtx, ref, capturedAt)

			mu.Lock()
			if outcome.done {
				report.GuildsDone++
			} else {
				report.GuildsFailed++
			}
			if outcome.snapshot {
				report.SnapshotsInserted++
			}
			report.MembersInserted += outcome.members
			report.BattlesInserted += outcome.battles
			e.broadcastProgress(run, report, "syncing_guilds")
			mu.Unlock()
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logging.Warn().Err(err).Msg("Guild sync worker group reported an error")
	}
	pool.StopAndWait()
}

// syncGuild walks one guild through the pipeline: profile snapshot,
// member roster, battle summary. The first error stops this guild and
// records the failed state.
func (e *Engine) syncGuild(ctx context.Context, ref guildRef, capturedAt time.Time) guildOutcome {
	var out guildOutcome

	e.broadcastGuildState(ref.ID, ref.Name, StateFetchingProfile, "")

	dto, err := e.fetcher.GetGuild(ctx, ref.ID)
	if err != nil {
		e.failGuild(ref, fmt.Errorf("fetch profile: %w", err))
		return out
	}
	snapshot, err := validation.NormalizeGuild(dto, capturedAt)
	if err != nil {
		e.failGuild(ref, fmt.Errorf("normalize profile: %w", err))
		return out
	}
	if err := e.store.InsertGuildSnapshot(ctx, snapshot); err != nil {
		e.failGuild(ref, fmt.Errorf("store profile: %w", err))
		return out
	}
	out.snapshot = true

	e.broadcastGuildState(ref.ID, ref.Name, StateFetchingMembers, "")

	memberDTOs, err := e.fetcher.GetGuildMembers(ctx, ref.ID)
	if err != nil {
		e.failGuild(ref, fmt.Errorf("fetch members: %w", err))
		return out
	}
	members := make([]models.GuildMember, 0, len(memberDTOs))
	for i := range memberDTOs {
		member, err := validation.NormalizeGuildMember(&memberDTOs[i], ref.ID, capturedAt)
		if err != nil {
			// A malformed roster entry is skipped, not fatal for the guild.
			logging.Warn().Err(err).Str("guild_id", ref.ID).Msg("Skipping malformed guild member")
			continue
		}
		members = append(members, *member)
	}
	if err := e.store.InsertGuildMembers(ctx, members); err != nil {
		e.failGuild(ref, fmt.Errorf("store members: %w", err))
		return out
	}
	out.members = len(members)

	e.broadcastGuildState(ref.ID, ref.Name, StateFetchingBattles, "")

	battles, err := e.deriveBattles(ctx, ref, capturedAt)
	if err != nil {
		e.failGuild(ref, err)
		return out
	}
	if err := e.store.InsertGuildBattles(ctx, battles); err != nil {
		e.failGuild(ref, fmt.Errorf("store battles: %w", err))
		return out
	}
	out.battles = len(battles)

	e.broadcastGuildState(ref.ID, ref.Name, StateDone, "")
	metrics.GuildsSynced.Inc()
	out.done = true

	logging.Debug().
		Str("guild_id", ref.ID).
		Int("members", out.members).
		Int("battles", out.battles).
		Msg("Guild synced")

	return out
}

// deriveBattles summarizes the guild's recent fights from kill events
// already in local storage. Events without a battle id are solo kills
// and are skipped.
func (e *Engine) deriveBattles(ctx context.Context, ref guildRef, capturedAt time.Time) ([]models.GuildBattle, error) {
	scanLimit := e.cfg.GuildSync.BattleScanLimit
	if scanLimit <= 0 {
		scanLimit = 500
	}

	events, err := e.store.ListKillEvents(ctx, database.EventFilter{GuildID: ref.ID, Limit: scanLimit})
	if err != nil {
		return nil, fmt.Errorf("scan kill events: %w", err)
	}

	byBattle := make(map[int64]*models.GuildBattle)
	for i := range events {
		event := &events[i]
		if event.BattleID == nil {
			continue
		}

		battle, ok := byBattle[*event.BattleID]
		if !ok {
			battle = &models.GuildBattle{
				GuildID:    ref.ID,
				BattleID:   *event.BattleID,
				StartedAt:  event.Timestamp,
				CapturedAt: capturedAt,
			}
			byBattle[*event.BattleID] = battle
		}

		// The earliest event anchors the battle start.
		if event.Timestamp.Before(battle.StartedAt) {
			battle.StartedAt = event.Timestamp
		}

		if event.Killer.GuildID == ref.ID {
			battle.Kills++
			battle.Fame += event.TotalFame
		}
		if event.Victim.GuildID == ref.ID {
			battle.Deaths++
		}
		if event.Location != "" && !containsZone(battle.Zones, event.Location) {
			battle.Zones = append(battle.Zones, event.Location)
		}
	}

	battles := make([]models.GuildBattle, 0, len(byBattle))
	for _, battle := range byBattle {
		battles = append(battles, *battle)
	}
	// Map iteration order is randomized; keep the insert deterministic.
	sort.Slice(battles, func(i, j int) bool { return battles[i].BattleID < battles[j].BattleID })

	return battles, nil
}

func (e *Engine) failGuild(ref guildRef, err error) {
	metrics.GuildSyncFailures.Inc()
	logging.Warn().Err(err).Str("guild_id", ref.ID).Msg("Guild sync failed")
	e.broadcastGuildState(ref.ID, ref.Name, StateFailed, err.Error())
}

func (e *Engine) broadcastGuildState(guildID, guildName, state, errText string) {
	if e.hub != nil {
		e.hub.BroadcastGuildState(guildID, guildName, state, errText)
	}
}

// broadcastProgress mirrors the report counters into the run row and
// notifies WebSocket clients.
func (e *Engine) broadcastProgress(run *models.SyncRun, report *Report, stage string) {
	run.Fetched = report.Fetched()
	run.Inserted = report.Inserted()
	run.Errors = report.Errors()

	if e.hub != nil {
		e.hub.BroadcastRunProgress(run, stage)
	}
}

func containsZone(zones []string, zone string) bool {
	for _, z := range zones {
		if z == zone {
			return true
		}
	}
	return false
}
