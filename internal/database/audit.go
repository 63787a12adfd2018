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

	"github.com/amerel/killboard/internal/models"
)

// InsertAuditEvent persists one audit record.
func (db *DB) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	var details interface{}
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = string(raw)
	}

	const q = `INSERT INTO audit_log (
		id, event_type, severity, outcome, actor, resource, details, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, q,
		event.ID, event.EventType, event.Severity, event.Outcome,
		event.Actor, event.Resource, details, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit records newest first, optionally filtered
// by event type.
func (db *DB) ListAuditEvents(ctx context.Context, eventType string, limit, offset int) ([]models.AuditEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT id, event_type, severity, outcome, actor, resource, details, created_at
	FROM audit_log`
	args := []interface{}{}
	if eventType != "" {
		q += ` WHERE event_type = ?`
		args = append(args, eventType)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			event    models.AuditEvent
			actor    sql.NullString
			resource sql.NullString
			details  sql.NullString
		)
		if err := rows.Scan(
			&event.ID, &event.EventType, &event.Severity, &event.Outcome,
			&actor, &resource, &details, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Actor = actor.String
		event.Resource = resource.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, fmt.Errorf("failed to parse audit details: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountAuditEvents returns the number of stored audit records.
func (db *DB) CountAuditEvents(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// DeleteAuditEventsBefore removes records older than the cutoff and
// returns how many were deleted. Retention cleanup runs this on a schedule.
func (db *DB) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit events: %w", err)
	}
	return deleted, nil
}
