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

// EventFilter narrows kill event listings. Zero-valued fields are ignored.
type EventFilter struct {
	GuildID  string
	PlayerID string
	BattleID int64
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

// InsertKillEvent persists one kill event. The event_id unique constraint
// backs deduplication: an insert racing a concurrent run returns
// ErrDuplicate instead of failing the batch.
func (db *DB) InsertKillEvent(ctx context.Context, event *models.KillEvent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	killerEquip, err := json.Marshal(event.Killer.Equipment)
	if err != nil {
		return fmt.Errorf("failed to marshal killer equipment: %w", err)
	}
	victimEquip, err := json.Marshal(event.Victim.Equipment)
	if err != nil {
		return fmt.Errorf("failed to marshal victim equipment: %w", err)
	}
	inventory, err := json.Marshal(event.VictimInventory)
	if err != nil {
		return fmt.Errorf("failed to marshal victim inventory: %w", err)
	}

	const q = `INSERT INTO kill_events (
		id, event_id, event_time, battle_id, participants, total_fame, location,
		killer_id, killer_name, killer_guild_id, killer_guild_name,
		killer_alliance_id, killer_alliance_name, killer_item_power, killer_equipment,
		victim_id, victim_name, victim_guild_id, victim_guild_name,
		victim_alliance_id, victim_alliance_name, victim_item_power, victim_equipment,
		victim_inventory, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, q,
		event.ID, event.EventID, event.Timestamp, nullableInt64(event.BattleID),
		event.Participants, event.TotalFame, event.Location,
		event.Killer.PlayerID, event.Killer.Name, event.Killer.GuildID, event.Killer.GuildName,
		event.Killer.AllianceID, event.Killer.AllianceName, event.Killer.ItemPower, string(killerEquip),
		event.Victim.PlayerID, event.Victim.Name, event.Victim.GuildID, event.Victim.GuildName,
		event.Victim.AllianceID, event.Victim.AllianceName, event.Victim.ItemPower, string(victimEquip),
		string(inventory), event.CreatedAt,
	)
	metrics.RecordDBQuery("INSERT", "kill_events", time.Since(start), err)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert kill event: %w", err)
	}
	return nil
}

// HasKillEvent reports whether an event with the external id exists.
func (db *DB) HasKillEvent(ctx context.Context, eventID int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var one int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM kill_events WHERE event_id = ? LIMIT 1`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check kill event existence: %w", err)
	}
	return true, nil
}

// GetKillEventByEventID returns the event with the external id.
func (db *DB) GetKillEventByEventID(ctx context.Context, eventID int64) (*models.KillEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectKillEventColumns+` FROM kill_events WHERE event_id = ?`, eventID)

	event, err := scanKillEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kill event %d: %w", eventID, err)
	}
	return event, nil
}

// ListKillEvents returns events matching the filter, newest first.
func (db *DB) ListKillEvents(ctx context.Context, f EventFilter) ([]models.KillEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	wb := query.NewWhereBuilder()
	wb.AddGuild(f.GuildID)
	wb.AddPlayer(f.PlayerID)
	wb.AddBattle(f.BattleID)
	wb.AddTimeRange("event_time", f.Since, f.Until)
	where, args := wb.Build()

	limit, offset := query.ClampPage(f.Limit, f.Offset, 50, 1000)
	args = append(args, limit, offset)

	q := selectKillEventColumns + ` FROM kill_events` + where +
		` ORDER BY event_time DESC LIMIT ? OFFSET ?`

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list kill events: %w", err)
	}
	defer rows.Close()

	var events []models.KillEvent
	for rows.Next() {
		event, err := scanKillEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kill event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ListRecentKillEvents returns the newest events up to limit. The build
// aggregator reads its corpus through this.
func (db *DB) ListRecentKillEvents(ctx context.Context, limit int) ([]models.KillEvent, error) {
	return db.ListKillEvents(ctx, EventFilter{Limit: limit})
}

// CountKillEvents returns the total number of stored events.
func (db *DB) CountKillEvents(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM kill_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count kill events: %w", err)
	}
	return count, nil
}

const selectKillEventColumns = `SELECT
	id, event_id, event_time, battle_id, participants, total_fame, location,
	killer_id, killer_name, killer_guild_id, killer_guild_name,
	killer_alliance_id, killer_alliance_name, killer_item_power, killer_equipment,
	victim_id, victim_name, victim_guild_id, victim_guild_name,
	victim_alliance_id, victim_alliance_name, victim_item_power, victim_equipment,
	victim_inventory, created_at`

// rowScanner lets scanKillEvent serve both QueryRow and Query results.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKillEvent(row rowScanner) (*models.KillEvent, error) {
	var (
		event        models.KillEvent
		battleID     sql.NullInt64
		location     sql.NullString
		killerGuild  [4]sql.NullString // guild_id, guild_name, alliance_id, alliance_name
		victimGuild  [4]sql.NullString
		killerEquip  sql.NullString
		victimEquip  sql.NullString
		inventoryRaw sql.NullString
	)

	err := row.Scan(
		&event.ID, &event.EventID, &event.Timestamp, &battleID,
		&event.Participants, &event.TotalFame, &location,
		&event.Killer.PlayerID, &event.Killer.Name, &killerGuild[0], &killerGuild[1],
		&killerGuild[2], &killerGuild[3], &event.Killer.ItemPower, &killerEquip,
		&event.Victim.PlayerID, &event.Victim.Name, &victimGuild[0], &victimGuild[1],
		&victimGuild[2], &victimGuild[3], &event.Victim.ItemPower, &victimEquip,
		&inventoryRaw, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if battleID.Valid {
		event.BattleID = &battleID.Int64
	}
	event.Location = location.String
	event.Killer.GuildID = killerGuild[0].String
	event.Killer.GuildName = killerGuild[1].String
	event.Killer.AllianceID = killerGuild[2].String
	event.Killer.AllianceName = killerGuild[3].String
	event.Victim.GuildID = victimGuild[0].String
	event.Victim.GuildName = victimGuild[1].String
	event.Victim.AllianceID = victimGuild[2].String
	event.Victim.AllianceName = victimGuild[3].String

	if killerEquip.Valid && killerEquip.String != "" {
		if err := json.Unmarshal([]byte(killerEquip.String), &event.Killer.Equipment); err != nil {
			return nil, fmt.Errorf("failed to parse killer equipment: %w", err)
		}
	}
	if victimEquip.Valid && victimEquip.String != "" {
		if err := json.Unmarshal([]byte(victimEquip.String), &event.Victim.Equipment); err != nil {
			return nil, fmt.Errorf("failed to parse victim equipment: %w", err)
		}
	}
	if inventoryRaw.Valid && inventoryRaw.String != "" {
		if err := json.Unmarshal([]byte(inventoryRaw.String), &event.VictimInventory); err != nil {
			return nil, fmt.Errorf("failed to parse victim inventory: %w", err)
		}
	}

	return &event, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
