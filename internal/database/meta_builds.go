// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amerel/killboard/internal/database/query"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

const metaBuildColumnCount = 14

// ReplaceMetaBuilds swaps the whole meta_builds table for a freshly
// computed set. The table is a derived projection, so a full replace is
// simpler and safer than diffing: stale fingerprints disappear instead of
// lingering with outdated rates.
//
// Batches are inserted sequentially. A failed batch is logged and skipped
// so one bad row cannot void an entire aggregation pass; the returned
// count reflects what actually landed.
func (db *DB) ReplaceMetaBuilds(ctx context.Context, builds []models.MetaBuild, batchSize int) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if batchSize <= 0 {
		batchSize = 100
	}

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `DELETE FROM meta_builds`)
	metrics.RecordDBQuery("DELETE", "meta_builds", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to clear meta builds: %w", err)
	}

	inserted := 0
	for i := 0; i < len(builds); i += batchSize {
		end := i + batchSize
		if end > len(builds) {
			end = len(builds)
		}
		batch := builds[i:end]

		if err := db.insertMetaBuildBatch(ctx, batch); err != nil {
			metrics.BuildBatchErrors.Inc()
			logging.Error().
				Err(err).
				Int("batch_start", i).
				Int("batch_size", len(batch)).
				Msg("Meta build batch insert failed, continuing with next batch")
			continue
		}
		inserted += len(batch)
	}

	return inserted, nil
}

func (db *DB) insertMetaBuildBatch(ctx context.Context, batch []models.MetaBuild) error {
	if len(batch) == 0 {
		return nil
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", metaBuildColumnCount), ", ") + ")"
	values := make([]string, len(batch))
	args := make([]interface{}, 0, len(batch)*metaBuildColumnCount)

	for i, b := range batch {
		values[i] = placeholder
		args = append(args,
			b.Fingerprint, b.Weapon, b.Head, b.Armor, b.Shoes, b.Cape,
			b.Kills, b.Deaths, b.WinRate, b.Popularity, b.AvgFame,
			b.SampleSize, b.IsHealer, b.ComputedAt,
		)
	}

	q := `INSERT INTO meta_builds (
		fingerprint, weapon, head, armor, shoes, cape,
		kills, deaths, win_rate, popularity, avg_fame,
		sample_size, is_healer, computed_at
	) VALUES ` + strings.Join(values, ", ")

	start := time.Now()
	_, err := db.conn.ExecContext(ctx, q, args...)
	metrics.RecordDBQuery("INSERT", "meta_builds", time.Since(start), err)
	return err
}

// GetMetaBuild returns the build with the given fingerprint.
func (db *DB) GetMetaBuild(ctx context.Context, fingerprint string) (*models.MetaBuild, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, selectMetaBuildColumns+
		` FROM meta_builds WHERE fingerprint = ?`, fingerprint)

	build, err := scanMetaBuild(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meta build %s: %w", fingerprint, err)
	}
	return build, nil
}

// ListMetaBuilds returns builds ordered by sample size, most observed
// first. healerOnly narrows the listing to healer weapon builds.
func (db *DB) ListMetaBuilds(ctx context.Context, healerOnly bool, limit, offset int) ([]models.MetaBuild, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	limit, offset = query.ClampPage(limit, offset, 50, 500)

	q := selectMetaBuildColumns + ` FROM meta_builds`
	if healerOnly {
		q += ` WHERE is_healer = TRUE`
	}
	q += ` ORDER BY sample_size DESC, win_rate DESC LIMIT ? OFFSET ?`

	rows, err := db.conn.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list meta builds: %w", err)
	}
	defer rows.Close()

	var builds []models.MetaBuild
	for rows.Next() {
		build, err := scanMetaBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meta build: %w", err)
		}
		builds = append(builds, *build)
	}
	return builds, rows.Err()
}

// CountMetaBuilds returns the number of stored builds.
func (db *DB) CountMetaBuilds(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM meta_builds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count meta builds: %w", err)
	}
	return count, nil
}

const selectMetaBuildColumns = `SELECT
	fingerprint, weapon, head, armor, shoes, cape,
	kills, deaths, win_rate, popularity, avg_fame,
	sample_size, is_healer, computed_at`

func scanMetaBuild(row rowScanner) (*models.MetaBuild, error) {
	var build models.MetaBuild
	err := row.Scan(
		&build.Fingerprint, &build.Weapon, &build.Head, &build.Armor,
		&build.Shoes, &build.Cape,
		&build.Kills, &build.Deaths, &build.WinRate, &build.Popularity,
		&build.AvgFame, &build.SampleSize, &build.IsHealer, &build.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &build, nil
}
