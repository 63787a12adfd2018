// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package database provides DuckDB-backed persistence for kill events,
// battles, aggregated stats, meta builds, guild sync output, sync runs
// and the audit log.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/logging"
)

// DB wraps the DuckDB connection and provides all data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens (or creates) the database, configures the connection pool and
// initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// The data directory may not exist on first start.
	dbDir := filepath.Dir(cfg.Path)
	if cfg.Path != ":memory:" && dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	accessMode := cfg.AccessMode
	if accessMode == "" {
		accessMode = "read_write"
	}

	// Auto-install/auto-load stays disabled so startup cannot hang on
	// extension downloads in restricted networks.
	connStr := fmt.Sprintf("%s?access_mode=%s&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, accessMode, numThreads)
	if cfg.MaxMemoryMB > 0 {
		connStr += fmt.Sprintf("&max_memory=%dMB", cfg.MaxMemoryMB)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("access_mode", accessMode).
		Msg("Database ready")

	return db, nil
}

// configureConnectionPool sets pool parameters. DuckDB is in-process, so
// open connections map to native threads rather than sockets.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// initialize creates tables, runs versioned migrations and builds indexes.
func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}

	if err := db.runVersionedMigrations(); err != nil {
		return err
	}

	if err := db.createIndexes(); err != nil {
		return err
	}

	// Flush the WAL so a crash right after schema setup cannot force a
	// replay of CREATE TABLE statements on next start.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after schema initialization")
	}

	return nil
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()

	return db.conn.Close()
}

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Conn returns the underlying connection for packages that need direct
// access, such as the audit store.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// ensureContext returns ctx with a 30-second timeout when it carries no
// deadline, so no query can hang indefinitely.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// RecordCounts holds row counts for the main tables, served by the status
// endpoint and used for backup verification.
type RecordCounts struct {
	KillEvents  int64 `json:"kill_events"`
	Battles     int64 `json:"battles"`
	PlayerStats int64 `json:"player_stats"`
	GuildStats  int64 `json:"guild_stats"`
	MetaBuilds  int64 `json:"meta_builds"`
	SyncRuns    int64 `json:"sync_runs"`
}

// GetRecordCounts returns current row counts for the main tables.
func (db *DB) GetRecordCounts(ctx context.Context) (RecordCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var counts RecordCounts
	tables := []struct {
		name string
		dst  *int64
	}{
		{"kill_events", &counts.KillEvents},
		{"battles", &counts.Battles},
		{"player_pvp_stats", &counts.PlayerStats},
		{"guild_pvp_stats", &counts.GuildStats},
		{"meta_builds", &counts.MetaBuilds},
		{"sync_runs", &counts.SyncRuns},
	}

	for _, t := range tables {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.name)
		if err := db.conn.QueryRowContext(ctx, query).Scan(t.dst); err != nil {
			return counts, fmt.Errorf("failed to count %s: %w", t.name, err)
		}
	}

	return counts, nil
}
