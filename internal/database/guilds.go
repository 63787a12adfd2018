// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// Guild sync tables are append-only captures: every sync writes new rows
// stamped with captured_at, and reads pick the newest capture. History
// stays queryable without an archival step.

// InsertGuildSnapshot records one point-in-time guild profile.
func (db *DB) InsertGuildSnapshot(ctx context.Context, snap *models.GuildSnapshot) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}

	const q = `INSERT INTO guild_snapshots (
		id, guild_id, name, alliance_id, alliance_name,
		member_count, kill_fame, death_fame, captured_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q,
		snap.ID, snap.GuildID, snap.Name, snap.AllianceID, snap.AllianceName,
		snap.MemberCount, snap.KillFame, snap.DeathFame, snap.CapturedAt,
	)
	metrics.RecordDBQuery("INSERT", "guild_snapshots", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to insert guild snapshot for %s: %w", snap.GuildID, err)
	}
	return nil
}

// GetLatestGuildSnapshot returns the most recent capture for a guild.
func (db *DB) GetLatestGuildSnapshot(ctx context.Context, guildID string) (*models.GuildSnapshot, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectGuildSnapshotColumns+
		` FROM guild_snapshots WHERE guild_id = ? ORDER BY captured_at DESC LIMIT 1`, guildID)

	snap, err := scanGuildSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest guild snapshot for %s: %w", guildID, err)
	}
	return snap, nil
}

// ListGuildSnapshots returns a guild's capture history, newest first.
func (db *DB) ListGuildSnapshots(ctx context.Context, guildID string, limit int) ([]models.GuildSnapshot, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx, selectGuildSnapshotColumns+
		` FROM guild_snapshots WHERE guild_id = ? ORDER BY captured_at DESC LIMIT ?`,
		guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild snapshots for %s: %w", guildID, err)
	}
	defer rows.Close()

	var snaps []models.GuildSnapshot
	for rows.Next() {
		snap, err := scanGuildSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guild snapshot: %w", err)
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// InsertGuildMembers records one capture of a guild's roster.
func (db *DB) InsertGuildMembers(ctx context.Context, members []models.GuildMember) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	const batchSize = 100
	for i := 0; i < len(members); i += batchSize {
		end := i + batchSize
		if end > len(members) {
			end = len(members)
		}
		if err := db.insertGuildMemberBatch(ctx, members[i:end]); err != nil {
			return fmt.Errorf("failed to insert guild members: %w", err)
		}
	}
	return nil
}

func (db *DB) insertGuildMemberBatch(ctx context.Context, batch []models.GuildMember) error {
	if len(batch) == 0 {
		return nil
	}

	values := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*8)
	now := time.Now().UTC()

	for i := range batch {
		m := &batch[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CapturedAt.IsZero() {
			m.CapturedAt = now
		}
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			m.ID, m.GuildID, m.PlayerID, m.PlayerName,
			m.KillFame, m.DeathFame, m.ItemPower, m.CapturedAt,
		)
	}

	q := `INSERT INTO guild_members (
		id, guild_id, player_id, player_name,
		kill_fame, death_fame, item_power, captured_at
	) VALUES ` + strings.Join(values, ", ")

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q, args...)
	metrics.RecordDBQuery("INSERT", "guild_members", time.Since(start), err)
	return err
}

// ListLatestGuildMembers returns the roster from a guild's newest capture,
// ordered by kill fame.
func (db *DB) ListLatestGuildMembers(ctx context.Context, guildID string) ([]models.GuildMember, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	const q = `SELECT
		id, guild_id, player_id, player_name,
		kill_fame, death_fame, item_power, captured_at
	FROM guild_members
	WHERE guild_id = ? AND captured_at = (
		SELECT MAX(captured_at) FROM guild_members WHERE guild_id = ?
	)
	ORDER BY kill_fame DESC`

	rows, err := db.conn.QueryContext(ctx, q, guildID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild members for %s: %w", guildID, err)
	}
	defer rows.Close()

	var members []models.GuildMember
	for rows.Next() {
		var m models.GuildMember
		if err := rows.Scan(
			&m.ID, &m.GuildID, &m.PlayerID, &m.PlayerName,
			&m.KillFame, &m.DeathFame, &m.ItemPower, &m.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan guild member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// InsertGuildRankings appends one captured leaderboard.
func (db *DB) InsertGuildRankings(ctx context.Context, rankings []models.GuildRanking) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(rankings) == 0 {
		return nil
	}

	values := make([]string, len(rankings))
	args := make([]interface{}, 0, len(rankings)*8)
	now := time.Now().UTC()

	for i := range rankings {
		r := &rankings[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.CapturedAt.IsZero() {
			r.CapturedAt = now
		}
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			r.ID, r.GuildID, r.GuildName, r.Metric, r.Range,
			r.Rank, r.Value, r.CapturedAt,
		)
	}

	q := `INSERT INTO guild_rankings (
		id, guild_id, guild_name, metric, time_range, rank, value, captured_at
	) VALUES ` + strings.Join(values, ", ")

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q, args...)
	metrics.RecordDBQuery("INSERT", "guild_rankings", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to insert guild rankings: %w", err)
	}
	return nil
}

// ListGuildRankings returns the newest captured leaderboard for a time
// range, ordered by rank.
func (db *DB) ListGuildRankings(ctx context.Context, timeRange string, limit int) ([]models.GuildRanking, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const q = `SELECT
		id, guild_id, guild_name, metric, time_range, rank, value, captured_at
	FROM guild_rankings
	WHERE time_range = ? AND captured_at = (
		SELECT MAX(captured_at) FROM guild_rankings WHERE time_range = ?
	)
	ORDER BY rank ASC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, q, timeRange, timeRange, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild rankings for %s: %w", timeRange, err)
	}
	defer rows.Close()

	var rankings []models.GuildRanking
	for rows.Next() {
		var r models.GuildRanking
		if err := rows.Scan(
			&r.ID, &r.GuildID, &r.GuildName, &r.Metric, &r.Range,
			&r.Rank, &r.Value, &r.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan guild ranking: %w", err)
		}
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}

// InsertGuildBattles appends battle involvement rows for one capture.
func (db *DB) InsertGuildBattles(ctx context.Context, battles []models.GuildBattle) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if len(battles) == 0 {
		return nil
	}

	values := make([]string, len(battles))
	args := make([]interface{}, 0, len(battles)*9)
	now := time.Now().UTC()

	for i := range battles {
		b := &battles[i]
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.CapturedAt.IsZero() {
			b.CapturedAt = now
		}
		zones, err := json.Marshal(b.Zones)
		if err != nil {
			return fmt.Errorf("failed to marshal battle zones: %w", err)
		}
		values[i] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			b.ID, b.GuildID, b.BattleID, b.Kills, b.Deaths, b.Fame,
			string(zones), b.StartedAt, b.CapturedAt,
		)
	}

	q := `INSERT INTO guild_battles (
		id, guild_id, battle_id, kills, deaths, fame, zones, started_at, captured_at
	) VALUES ` + strings.Join(values, ", ")

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q, args...)
	metrics.RecordDBQuery("INSERT", "guild_battles", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to insert guild battles: %w", err)
	}
	return nil
}

// ListGuildBattles returns battles from a guild's newest capture, most
// recent battle first.
func (db *DB) ListGuildBattles(ctx context.Context, guildID string, limit int) ([]models.GuildBattle, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}

	const q = `SELECT
		id, guild_id, battle_id, kills, deaths, fame, zones, started_at, captured_at
	FROM guild_battles
	WHERE guild_id = ? AND captured_at = (
		SELECT MAX(captured_at) FROM guild_battles WHERE guild_id = ?
	)
	ORDER BY started_at DESC LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, q, guildID, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild battles for %s: %w", guildID, err)
	}
	defer rows.Close()

	var battles []models.GuildBattle
	for rows.Next() {
		var (
			b     models.GuildBattle
			zones sql.NullString
		)
		if err := rows.Scan(
			&b.ID, &b.GuildID, &b.BattleID, &b.Kills, &b.Deaths, &b.Fame,
			&zones, &b.StartedAt, &b.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan guild battle: %w", err)
		}
		if zones.Valid && zones.String != "" {
			if err := json.Unmarshal([]byte(zones.String), &b.Zones); err != nil {
				return nil, fmt.Errorf("failed to parse battle zones: %w", err)
			}
		}
		battles = append(battles, b)
	}
	return battles, rows.Err()
}

const selectGuildSnapshotColumns = `SELECT
	id, guild_id, name, alliance_id, alliance_name,
	member_count, kill_fame, death_fame, captured_at`

func scanGuildSnapshot(row rowScanner) (*models.GuildSnapshot, error) {
	var (
		snap         models.GuildSnapshot
		allianceID   sql.NullString
		allianceName sql.NullString
	)

	err := row.Scan(
		&snap.ID, &snap.GuildID, &snap.Name, &allianceID, &allianceName,
		&snap.MemberCount, &snap.KillFame, &snap.DeathFame, &snap.CapturedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.AllianceID = allianceID.String
	snap.AllianceName = allianceName.String
	return &snap, nil
}
