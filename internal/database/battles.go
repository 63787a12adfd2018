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
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/database/query"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// UpsertBattle inserts a battle or refreshes an existing row in place.
// Successive runs see the same battle with more kills attached, so the
// conflict branch overwrites the aggregate columns rather than merging.
func (db *DB) UpsertBattle(ctx context.Context, battle *models.Battle) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if battle.ID == uuid.Nil {
		battle.ID = uuid.New()
	}
	now := time.Now().UTC()
	if battle.CreatedAt.IsZero() {
		battle.CreatedAt = now
	}
	battle.UpdatedAt = now

	sideA, err := json.Marshal(battle.SideAIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal side A ids: %w", err)
	}
	sideB, err := json.Marshal(battle.SideBIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal side B ids: %w", err)
	}

	const q = `INSERT INTO battles (
		id, battle_id, started_at, ended_at, total_kills, total_fame,
		side_a_players, side_b_players, side_a_ids, side_b_ids,
		total_players, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (battle_id) DO UPDATE SET
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		total_kills = excluded.total_kills,
		total_fame = excluded.total_fame,
		side_a_players = excluded.side_a_players,
		side_b_players = excluded.side_b_players,
		side_a_ids = excluded.side_a_ids,
		side_b_ids = excluded.side_b_ids,
		total_players = excluded.total_players,
		updated_at = excluded.updated_at`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, q,
		battle.ID, battle.BattleID, battle.StartedAt, nullableTime(battle.EndedAt),
		battle.TotalKills, battle.TotalFame,
		battle.SideAPlayers, battle.SideBPlayers, string(sideA), string(sideB),
		battle.TotalPlayers, battle.CreatedAt, battle.UpdatedAt,
	)
	metrics.RecordDBQuery("UPSERT", "battles", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to upsert battle %d: %w", battle.BattleID, err)
	}
	return nil
}

// GetBattleByBattleID returns the battle with the external id.
func (db *DB) GetBattleByBattleID(ctx context.Context, battleID int64) (*models.Battle, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectBattleColumns+` FROM battles WHERE battle_id = ?`, battleID)

	battle, err := scanBattle(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get battle %d: %w", battleID, err)
	}
	return battle, nil
}

// ListBattles returns battles newest first.
func (db *DB) ListBattles(ctx context.Context, limit, offset int) ([]models.Battle, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	limit, offset = query.ClampPage(limit, offset, 50, 500)

	rows, err := db.conn.QueryContext(ctx,
		selectBattleColumns+` FROM battles ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list battles: %w", err)
	}
	defer rows.Close()

	var battles []models.Battle
	for rows.Next() {
		battle, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan battle: %w", err)
		}
		battles = append(battles, *battle)
	}
	return battles, rows.Err()
}

// CountBattles returns the total number of stored battles.
func (db *DB) CountBattles(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM battles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count battles: %w", err)
	}
	return count, nil
}

const selectBattleColumns = `SELECT
	id, battle_id, started_at, ended_at, total_kills, total_fame,
	side_a_players, side_b_players, side_a_ids, side_b_ids,
	total_players, created_at, updated_at`

func scanBattle(row rowScanner) (*models.Battle, error) {
	var (
		battle  models.Battle
		endedAt sql.NullTime
		sideA   sql.NullString
		sideB   sql.NullString
	)

	err := row.Scan(
		&battle.ID, &battle.BattleID, &battle.StartedAt, &endedAt,
		&battle.TotalKills, &battle.TotalFame,
		&battle.SideAPlayers, &battle.SideBPlayers, &sideA, &sideB,
		&battle.TotalPlayers, &battle.CreatedAt, &battle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		battle.EndedAt = &endedAt.Time
	}
	if sideA.Valid && sideA.String != "" {
		if err := json.Unmarshal([]byte(sideA.String), &battle.SideAIDs); err != nil {
			return nil, fmt.Errorf("failed to parse side A ids: %w", err)
		}
	}
	if sideB.Valid && sideB.String != "" {
		if err := json.Unmarshal([]byte(sideB.String), &battle.SideBIDs); err != nil {
			return nil, fmt.Errorf("failed to parse side B ids: %w", err)
		}
	}

	return &battle, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
