// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"context"
	"testing"
	"time"

	"github.com/amerel/killboard/internal/config"
)

// DuckDB is in-process and each test opens its own instance, so tests
// share one slot to keep memory use flat under -parallel.
var dbTestSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	select {
	case dbTestSemaphore <- struct{}{}:
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for database test slot")
	}
	t.Cleanup(func() { <-dbTestSemaphore })

	cfg := &config.DatabaseConfig{
		Path:        ":memory:",
		SkipIndexes: true,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

func TestNewInMemory(t *testing.T) {
	db := setupTestDB(t)

	if db.Conn() == nil {
		t.Fatal("expected usable connection")
	}
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestSchemaCreated(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tables := []string{
		"kill_events", "battles", "player_pvp_stats", "guild_pvp_stats",
		"meta_builds", "guild_snapshots", "guild_members", "guild_rankings",
		"guild_battles", "sync_runs", "audit_log", "schema_migrations",
	}
	for _, table := range tables {
		var count int64
		err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	db := setupTestDB(t)

	version, err := db.GetCurrentSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion() error = %v", err)
	}
	if version < 0 {
		t.Errorf("schema version = %d, want >= 0", version)
	}
}

func TestCreateIndexes(t *testing.T) {
	db := setupTestDB(t)

	// Setup skipped indexes; creating them explicitly must succeed and be
	// idempotent.
	for i := 0; i < 2; i++ {
		if err := db.CreateIndexes(); err != nil {
			t.Fatalf("CreateIndexes() pass %d error = %v", i+1, err)
		}
	}
}

func TestGetRecordCounts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	counts, err := db.GetRecordCounts(ctx)
	if err != nil {
		t.Fatalf("GetRecordCounts() error = %v", err)
	}
	if counts.KillEvents != 0 || counts.Battles != 0 || counts.SyncRuns != 0 {
		t.Errorf("expected empty database, got %+v", counts)
	}

	event := sampleKillEvent(1001)
	if err := db.InsertKillEvent(ctx, event); err != nil {
		t.Fatalf("InsertKillEvent() error = %v", err)
	}

	counts, err = db.GetRecordCounts(ctx)
	if err != nil {
		t.Fatalf("GetRecordCounts() after insert error = %v", err)
	}
	if counts.KillEvents != 1 {
		t.Errorf("KillEvents = %d, want 1", counts.KillEvents)
	}
}

func TestCheckpoint(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Checkpoint(context.Background()); err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
}
