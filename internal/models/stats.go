// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import "time"

// PlayerPvPStat holds lifetime PvP counters for one player. Counters are
// monotonically non-decreasing and only the ingestion engine writes them,
// via read-modify-write keyed by PlayerID.
type PlayerPvPStat struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`

	Kills       int64 `json:"kills"`
	Deaths      int64 `json:"deaths"`
	TotalFame   int64 `json:"total_fame"`
	KillFame    int64 `json:"kill_fame"`
	DeathFame   int64 `json:"death_fame"`
	GamesPlayed int64 `json:"games_played"`

	LastKillAt  *time.Time `json:"last_kill_at,omitempty"`
	LastDeathAt *time.Time `json:"last_death_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// GuildPvPStat holds rolling PvP counters for one guild. The weekly and
// monthly windows are additive-only: no external process resets them, so
// WeekStartedAt/MonthStartedAt record when each window began for a future
// reset job to roll.
type GuildPvPStat struct {
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`

	Kills     int64 `json:"kills"`
	Deaths    int64 `json:"deaths"`
	KillFame  int64 `json:"kill_fame"`
	DeathFame int64 `json:"death_fame"`

	WeeklyKills   int64 `json:"weekly_kills"`
	WeeklyDeaths  int64 `json:"weekly_deaths"`
	MonthlyKills  int64 `json:"monthly_kills"`
	MonthlyDeaths int64 `json:"monthly_deaths"`

	WeekStartedAt  time.Time `json:"week_started_at"`
	MonthStartedAt time.Time `json:"month_started_at"`

	UpdatedAt time.Time `json:"updated_at"`
}
