// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

/*
schema.go - Database Schema Management

Tables:
  - kill_events: one row per PvP kill, killer/victim denormalized with
    equipment snapshots as JSON. event_id carries a UNIQUE constraint;
    it is the deduplication key for ingestion.
  - battles: one row per external battle id, upserted as later pages
    refine kill/fame totals.
  - player_pvp_stats / guild_pvp_stats: incrementally maintained
    aggregates keyed by the external entity id.
  - meta_builds: output of the build aggregator, fully replaced each run.
  - guild_snapshots / guild_members / guild_rankings / guild_battles:
    append-only point-in-time captures from guild sync runs.
  - sync_runs: one row per ingestion/aggregation/guild sync run.
  - audit_log: operational audit trail with retention cleanup.

Unique constraints live in the CREATE TABLE statements because
correctness depends on them. Secondary indexes are created separately
and can be skipped for fast test setup (SkipIndexes).
*/

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kill_events (
			id UUID PRIMARY KEY,
			event_id BIGINT NOT NULL UNIQUE,
			event_time TIMESTAMP NOT NULL,
			battle_id BIGINT,
			participants INTEGER NOT NULL DEFAULT 0,
			total_fame BIGINT NOT NULL DEFAULT 0,
			location TEXT,

			killer_id TEXT NOT NULL,
			killer_name TEXT NOT NULL,
			killer_guild_id TEXT,
			killer_guild_name TEXT,
			killer_alliance_id TEXT,
			killer_alliance_name TEXT,
			killer_item_power DOUBLE NOT NULL DEFAULT 0,
			killer_equipment TEXT,

			victim_id TEXT NOT NULL,
			victim_name TEXT NOT NULL,
			victim_guild_id TEXT,
			victim_guild_name TEXT,
			victim_alliance_id TEXT,
			victim_alliance_name TEXT,
			victim_item_power DOUBLE NOT NULL DEFAULT 0,
			victim_equipment TEXT,
			victim_inventory TEXT,

			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS battles (
			id UUID PRIMARY KEY,
			battle_id BIGINT NOT NULL UNIQUE,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			total_kills INTEGER NOT NULL DEFAULT 0,
			total_fame BIGINT NOT NULL DEFAULT 0,
			side_a_players INTEGER NOT NULL DEFAULT 0,
			side_b_players INTEGER NOT NULL DEFAULT 0,
			side_a_ids TEXT,
			side_b_ids TEXT,
			total_players INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS player_pvp_stats (
			player_id TEXT PRIMARY KEY,
			player_name TEXT NOT NULL,
			kills BIGINT NOT NULL DEFAULT 0,
			deaths BIGINT NOT NULL DEFAULT 0,
			total_fame BIGINT NOT NULL DEFAULT 0,
			kill_fame BIGINT NOT NULL DEFAULT 0,
			death_fame BIGINT NOT NULL DEFAULT 0,
			games_played BIGINT NOT NULL DEFAULT 0,
			last_kill_at TIMESTAMP,
			last_death_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS guild_pvp_stats (
			guild_id TEXT PRIMARY KEY,
			guild_name TEXT NOT NULL,
			kills BIGINT NOT NULL DEFAULT 0,
			deaths BIGINT NOT NULL DEFAULT 0,
			kill_fame BIGINT NOT NULL DEFAULT 0,
			death_fame BIGINT NOT NULL DEFAULT 0,
			weekly_kills BIGINT NOT NULL DEFAULT 0,
			weekly_deaths BIGINT NOT NULL DEFAULT 0,
			monthly_kills BIGINT NOT NULL DEFAULT 0,
			monthly_deaths BIGINT NOT NULL DEFAULT 0,
			week_started_at TIMESTAMP,
			month_started_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS meta_builds (
			fingerprint TEXT PRIMARY KEY,
			weapon TEXT NOT NULL,
			head TEXT NOT NULL,
			armor TEXT NOT NULL,
			shoes TEXT NOT NULL,
			cape TEXT NOT NULL,
			kills BIGINT NOT NULL DEFAULT 0,
			deaths BIGINT NOT NULL DEFAULT 0,
			win_rate DOUBLE NOT NULL DEFAULT 0,
			popularity DOUBLE NOT NULL DEFAULT 0,
			avg_fame DOUBLE NOT NULL DEFAULT 0,
			sample_size BIGINT NOT NULL DEFAULT 0,
			is_healer BOOLEAN NOT NULL DEFAULT FALSE,
			computed_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS guild_snapshots (
			id UUID PRIMARY KEY,
			guild_id TEXT NOT NULL,
			name TEXT NOT NULL,
			alliance_id TEXT,
			alliance_name TEXT,
			member_count INTEGER NOT NULL DEFAULT 0,
			kill_fame BIGINT NOT NULL DEFAULT 0,
			death_fame BIGINT NOT NULL DEFAULT 0,
			captured_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS guild_members (
			id UUID PRIMARY KEY,
			guild_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			player_name TEXT NOT NULL,
			kill_fame BIGINT NOT NULL DEFAULT 0,
			death_fame BIGINT NOT NULL DEFAULT 0,
			item_power DOUBLE NOT NULL DEFAULT 0,
			captured_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS guild_rankings (
			id UUID PRIMARY KEY,
			guild_id TEXT NOT NULL,
			guild_name TEXT NOT NULL,
			metric TEXT NOT NULL,
			time_range TEXT NOT NULL,
			rank INTEGER NOT NULL,
			value BIGINT NOT NULL DEFAULT 0,
			captured_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS guild_battles (
			id UUID PRIMARY KEY,
			guild_id TEXT NOT NULL,
			battle_id BIGINT NOT NULL,
			kills INTEGER NOT NULL DEFAULT 0,
			deaths INTEGER NOT NULL DEFAULT 0,
			fame BIGINT NOT NULL DEFAULT 0,
			zones TEXT,
			started_at TIMESTAMP NOT NULL,
			captured_at TIMESTAMP NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS sync_runs (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			trigger_source TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			fetched INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			duplicates INTEGER NOT NULL DEFAULT 0,
			errors INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT
		);`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			outcome TEXT NOT NULL,
			actor TEXT,
			resource TEXT,
			details TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}

// createIndexes creates secondary indexes unless the config skips them.
// Unique constraints are unaffected; they live in the table DDL.
func (db *DB) createIndexes() error {
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}
	return db.doCreateIndexes()
}

// CreateIndexes creates all secondary indexes. Exposed for tests that
// need them despite SkipIndexes.
func (db *DB) CreateIndexes() error {
	return db.doCreateIndexes()
}

func (db *DB) doCreateIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}

	return nil
}

// getIndexQueries returns index creation SQL statements.
func (db *DB) getIndexQueries() []string {
	return []string{
		// Event listing and per-entity scans.
		`CREATE INDEX IF NOT EXISTS idx_kill_events_time ON kill_events(event_time DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_kill_events_battle ON kill_events(battle_id);`,
		`CREATE INDEX IF NOT EXISTS idx_kill_events_killer ON kill_events(killer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_kill_events_victim ON kill_events(victim_id);`,
		`CREATE INDEX IF NOT EXISTS idx_kill_events_killer_guild ON kill_events(killer_guild_id);`,
		`CREATE INDEX IF NOT EXISTS idx_kill_events_victim_guild ON kill_events(victim_guild_id);`,

		`CREATE INDEX IF NOT EXISTS idx_battles_started ON battles(started_at DESC);`,

		// Leaderboard sorts.
		`CREATE INDEX IF NOT EXISTS idx_player_stats_kills ON player_pvp_stats(kills DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_player_stats_kill_fame ON player_pvp_stats(kill_fame DESC);`,

		`CREATE INDEX IF NOT EXISTS idx_meta_builds_healer ON meta_builds(is_healer);`,
		`CREATE INDEX IF NOT EXISTS idx_meta_builds_sample ON meta_builds(sample_size DESC);`,

		// Guild sync captures are read newest-first per guild.
		`CREATE INDEX IF NOT EXISTS idx_guild_snapshots_guild ON guild_snapshots(guild_id, captured_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_guild_members_guild ON guild_members(guild_id, captured_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_guild_rankings_range ON guild_rankings(time_range, captured_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_guild_battles_guild ON guild_battles(guild_id, captured_at DESC);`,

		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_kind ON sync_runs(kind, started_at DESC);`,

		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_type ON audit_log(event_type);`,
	}
}
