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

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// InsertSyncRun records the start of a run. The row is updated with
// FinishSyncRun when the run completes, so a row with a NULL finished_at
// marks a run that is in flight or was cut short by a crash.
func (db *DB) InsertSyncRun(ctx context.Context, run *models.SyncRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	const q = `INSERT INTO sync_runs (
		id, kind, trigger_source, started_at, finished_at,
		fetched, inserted, duplicates, errors, success, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q,
		run.ID, run.Kind, run.TriggerSource, run.StartedAt, nullableTime(run.FinishedAt),
		run.Fetched, run.Inserted, run.Duplicates, run.Errors, run.Success, run.Error,
	)
	metrics.RecordDBQuery("INSERT", "sync_runs", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}
	return nil
}

// FinishSyncRun writes the final counters and outcome for a run.
func (db *DB) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	const q = `UPDATE sync_runs SET
		finished_at = ?,
		fetched = ?,
		inserted = ?,
		duplicates = ?,
		errors = ?,
		success = ?,
		error = ?
	WHERE id = ?`

	start := time.Now()
	result, err := db.conn.ExecContext(ctx, q,
		nullableTime(run.FinishedAt), run.Fetched, run.Inserted,
		run.Duplicates, run.Errors, run.Success, run.Error, run.ID,
	)
	metrics.RecordDBQuery("UPDATE", "sync_runs", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to finish sync run %s: %w", run.ID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSyncRun returns a run by id.
func (db *DB) GetSyncRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectSyncRunColumns+` FROM sync_runs WHERE id = ?`, id)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync run %s: %w", id, err)
	}
	return run, nil
}

// ListSyncRuns returns runs newest first, optionally filtered by kind.
func (db *DB) ListSyncRuns(ctx context.Context, kind string, limit, offset int) ([]models.SyncRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := selectSyncRunColumns + ` FROM sync_runs`
	args := []interface{}{}
	if kind != "" {
		q += ` WHERE kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetLatestSyncRun returns the most recently started run of a kind.
func (db *DB) GetLatestSyncRun(ctx context.Context, kind string) (*models.SyncRun, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectSyncRunColumns+
		` FROM sync_runs WHERE kind = ? ORDER BY started_at DESC LIMIT 1`, kind)

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s run: %w", kind, err)
	}
	return run, nil
}

const selectSyncRunColumns = `SELECT
	id, kind, trigger_source, started_at, finished_at,
	fetched, inserted, duplicates, errors, success, error`

func scanSyncRun(row rowScanner) (*models.SyncRun, error) {
	var (
		run        models.SyncRun
		finishedAt sql.NullTime
		runError   sql.NullString
	)

	err := row.Scan(
		&run.ID, &run.Kind, &run.TriggerSource, &run.StartedAt, &finishedAt,
		&run.Fetched, &run.Inserted, &run.Duplicates, &run.Errors,
		&run.Success, &runError,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.Error = runError.String
	return &run, nil
}
