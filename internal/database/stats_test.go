// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amerel/killboard/internal/models"
)

func TestPlayerStatsReadModifyWrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.GetPlayerStats(ctx, "p1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPlayerStats() on empty table error = %v, want ErrNotFound", err)
	}

	killAt := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	stat := &models.PlayerPvPStat{
		PlayerID:    "p1",
		PlayerName:  "Ragnar",
		Kills:       1,
		TotalFame:   48210,
		KillFame:    48210,
		GamesPlayed: 1,
		LastKillAt:  &killAt,
	}
	if err := db.UpsertPlayerStats(ctx, stat); err != nil {
		t.Fatalf("UpsertPlayerStats() error = %v", err)
	}

	got, err := db.GetPlayerStats(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPlayerStats() error = %v", err)
	}
	got.Kills++
	got.KillFame += 10000
	got.GamesPlayed++
	if err := db.UpsertPlayerStats(ctx, got); err != nil {
		t.Fatalf("second UpsertPlayerStats() error = %v", err)
	}

	final, err := db.GetPlayerStats(ctx, "p1")
	if err != nil {
		t.Fatalf("final GetPlayerStats() error = %v", err)
	}
	if final.Kills != 2 {
		t.Errorf("Kills = %d, want 2", final.Kills)
	}
	if final.KillFame != 58210 {
		t.Errorf("KillFame = %d, want 58210", final.KillFame)
	}
	if final.LastKillAt == nil || !final.LastKillAt.Equal(killAt) {
		t.Errorf("LastKillAt = %v, want %v", final.LastKillAt, killAt)
	}
	if final.LastDeathAt != nil {
		t.Errorf("LastDeathAt = %v, want nil", final.LastDeathAt)
	}
}

func TestListTopPlayers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	players := []models.PlayerPvPStat{
		{PlayerID: "a", PlayerName: "Alva", Kills: 5, KillFame: 100},
		{PlayerID: "b", PlayerName: "Bjorn", Kills: 10, KillFame: 50},
		{PlayerID: "c", PlayerName: "Cato", Kills: 1, KillFame: 900},
	}
	for i := range players {
		if err := db.UpsertPlayerStats(ctx, &players[i]); err != nil {
			t.Fatalf("UpsertPlayerStats() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		by        string
		wantFirst string
	}{
		{"by kills", "kills", "b"},
		{"by kill fame", "kill_fame", "c"},
		{"default is kills", "", "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			top, err := db.ListTopPlayers(ctx, tt.by, 10)
			if err != nil {
				t.Fatalf("ListTopPlayers(%q) error = %v", tt.by, err)
			}
			if len(top) != 3 {
				t.Fatalf("got %d players, want 3", len(top))
			}
			if top[0].PlayerID != tt.wantFirst {
				t.Errorf("first player = %q, want %q", top[0].PlayerID, tt.wantFirst)
			}
		})
	}
}

func TestListTopPlayersRejectsUnknownColumn(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.ListTopPlayers(context.Background(), "kills; DROP TABLE player_pvp_stats", 10)
	if err == nil {
		t.Fatal("expected error for unknown sort column")
	}
}

func TestGuildStatsReadModifyWrite(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	weekStart := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	stat := &models.GuildPvPStat{
		GuildID:       "g1",
		GuildName:     "Iron Pact",
		Kills:         3,
		KillFame:      120000,
		WeeklyKills:   3,
		WeekStartedAt: weekStart,
	}
	if err := db.UpsertGuildStats(ctx, stat); err != nil {
		t.Fatalf("UpsertGuildStats() error = %v", err)
	}

	got, err := db.GetGuildStats(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGuildStats() error = %v", err)
	}
	if got.Kills != 3 || got.WeeklyKills != 3 {
		t.Errorf("kills = %d/%d, want 3/3", got.Kills, got.WeeklyKills)
	}
	if !got.WeekStartedAt.Equal(weekStart) {
		t.Errorf("WeekStartedAt = %v, want %v", got.WeekStartedAt, weekStart)
	}
	if !got.MonthStartedAt.IsZero() {
		t.Errorf("MonthStartedAt = %v, want zero", got.MonthStartedAt)
	}

	got.Deaths = 2
	got.DeathFame = 80000
	if err := db.UpsertGuildStats(ctx, got); err != nil {
		t.Fatalf("second UpsertGuildStats() error = %v", err)
	}

	final, err := db.GetGuildStats(ctx, "g1")
	if err != nil {
		t.Fatalf("final GetGuildStats() error = %v", err)
	}
	if final.Deaths != 2 || final.DeathFame != 80000 {
		t.Errorf("deaths = %d fame %d, want 2 and 80000", final.Deaths, final.DeathFame)
	}
}

func TestGetGuildStatsNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetGuildStats(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
