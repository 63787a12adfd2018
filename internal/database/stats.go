// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// topPlayerColumns is the allowlist for ListTopPlayers ordering. Column
// names are interpolated into SQL, so only values from this map are legal.
var topPlayerColumns = map[string]string{
	"kills":        "kills",
	"deaths":       "deaths",
	"total_fame":   "total_fame",
	"kill_fame":    "kill_fame",
	"death_fame":   "death_fame",
	"games_played": "games_played",
}

// GetPlayerStats returns the accumulated PvP stats for a player.
func (db *DB) GetPlayerStats(ctx context.Context, playerID string) (*models.PlayerPvPStat, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT
		player_id, player_name, kills, deaths, total_fame, kill_fame, death_fame,
		games_played, last_kill_at, last_death_at, updated_at
	FROM player_pvp_stats WHERE player_id = ?`, playerID)

	stat, err := scanPlayerStat(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats for %s: %w", playerID, err)
	}
	return stat, nil
}

// UpsertPlayerStats writes the full stats row. Callers read, adjust the
// counters in memory, and write back; ingestion runs are serialized so the
// read-modify-write cycle does not race itself.
func (db *DB) UpsertPlayerStats(ctx context.Context, stat *models.PlayerPvPStat) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stat.UpdatedAt = time.Now().UTC()

	const q = `INSERT INTO player_pvp_stats (
		player_id, player_name, kills, deaths, total_fame, kill_fame, death_fame,
		games_played, last_kill_at, last_death_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (player_id) DO UPDATE SET
		player_name = excluded.player_name,
		kills = excluded.kills,
		deaths = excluded.deaths,
		total_fame = excluded.total_fame,
		kill_fame = excluded.kill_fame,
		death_fame = excluded.death_fame,
		games_played = excluded.games_played,
		last_kill_at = excluded.last_kill_at,
		last_death_at = excluded.last_death_at,
		updated_at = excluded.updated_at`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q,
		stat.PlayerID, stat.PlayerName, stat.Kills, stat.Deaths,
		stat.TotalFame, stat.KillFame, stat.DeathFame, stat.GamesPlayed,
		nullableTime(stat.LastKillAt), nullableTime(stat.LastDeathAt), stat.UpdatedAt,
	)
	metrics.RecordDBQuery("UPSERT", "player_pvp_stats", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to upsert player stats for %s: %w", stat.PlayerID, err)
	}
	return nil
}

// ListTopPlayers returns players ordered by the given counter, highest
// first. The by value must come from the allowlist; anything else is
// rejected before touching SQL.
func (db *DB) ListTopPlayers(ctx context.Context, by string, limit int) ([]models.PlayerPvPStat, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if by == "" {
		by = "kills"
	}
	column, ok := topPlayerColumns[by]
	if !ok {
		return nil, fmt.Errorf("unsupported sort column %q", by)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := fmt.Sprintf(`SELECT
		player_id, player_name, kills, deaths, total_fame, kill_fame, death_fame,
		games_played, last_kill_at, last_death_at, updated_at
	FROM player_pvp_stats ORDER BY %s DESC LIMIT ?`, column)

	rows, err := db.conn.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top players: %w", err)
	}
	defer rows.Close()

	var stats []models.PlayerPvPStat
	for rows.Next() {
		stat, err := scanPlayerStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player stats: %w", err)
		}
		stats = append(stats, *stat)
	}
	return stats, rows.Err()
}

// GetGuildStats returns the accumulated PvP stats for a guild.
func (db *DB) GetGuildStats(ctx context.Context, guildID string) (*models.GuildPvPStat, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `SELECT
		guild_id, guild_name, kills, deaths, kill_fame, death_fame,
		weekly_kills, weekly_deaths, monthly_kills, monthly_deaths,
		week_started_at, month_started_at, updated_at
	FROM guild_pvp_stats WHERE guild_id = ?`, guildID)

	stat, err := scanGuildStat(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild stats for %s: %w", guildID, err)
	}
	return stat, nil
}

// UpsertGuildStats writes the full guild stats row.
func (db *DB) UpsertGuildStats(ctx context.Context, stat *models.GuildPvPStat) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	stat.UpdatedAt = time.Now().UTC()

	const q = `INSERT INTO guild_pvp_stats (
		guild_id, guild_name, kills, deaths, kill_fame, death_fame,
		weekly_kills, weekly_deaths, monthly_kills, monthly_deaths,
		week_started_at, month_started_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (guild_id) DO UPDATE SET
		guild_name = excluded.guild_name,
		kills = excluded.kills,
		deaths = excluded.deaths,
		kill_fame = excluded.kill_fame,
		death_fame = excluded.death_fame,
		weekly_kills = excluded.weekly_kills,
		weekly_deaths = excluded.weekly_deaths,
		monthly_kills = excluded.monthly_kills,
		monthly_deaths = excluded.monthly_deaths,
		week_started_at = excluded.week_started_at,
		month_started_at = excluded.month_started_at,
		updated_at = excluded.updated_at`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q,
		stat.GuildID, stat.GuildName, stat.Kills, stat.Deaths,
		stat.KillFame, stat.DeathFame,
		stat.WeeklyKills, stat.WeeklyDeaths, stat.MonthlyKills, stat.MonthlyDeaths,
		nullableZeroTime(stat.WeekStartedAt), nullableZeroTime(stat.MonthStartedAt), stat.UpdatedAt,
	)
	metrics.RecordDBQuery("UPSERT", "guild_pvp_stats", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to upsert guild stats for %s: %w", stat.GuildID, err)
	}
	return nil
}

func scanPlayerStat(row rowScanner) (*models.PlayerPvPStat, error) {
	var (
		stat        models.PlayerPvPStat
		lastKillAt  sql.NullTime
		lastDeathAt sql.NullTime
	)

	err := row.Scan(
		&stat.PlayerID, &stat.PlayerName, &stat.Kills, &stat.Deaths,
		&stat.TotalFame, &stat.KillFame, &stat.DeathFame, &stat.GamesPlayed,
		&lastKillAt, &lastDeathAt, &stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastKillAt.Valid {
		stat.LastKillAt = &lastKillAt.Time
	}
	if lastDeathAt.Valid {
		stat.LastDeathAt = &lastDeathAt.Time
	}
	return &stat, nil
}

func scanGuildStat(row rowScanner) (*models.GuildPvPStat, error) {
	var (
		stat           models.GuildPvPStat
		weekStartedAt  sql.NullTime
		monthStartedAt sql.NullTime
	)

	err := row.Scan(
		&stat.GuildID, &stat.GuildName, &stat.Kills, &stat.Deaths,
		&stat.KillFame, &stat.DeathFame,
		&stat.WeeklyKills, &stat.WeeklyDeaths, &stat.MonthlyKills, &stat.MonthlyDeaths,
		&weekStartedAt, &monthStartedAt, &stat.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if weekStartedAt.Valid {
		stat.WeekStartedAt = weekStartedAt.Time
	}
	if monthStartedAt.Valid {
		stat.MonthStartedAt = monthStartedAt.Time
	}
	return &stat, nil
}

func nullableZeroTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
