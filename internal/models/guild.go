// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// Guild sync rows are append-only point-in-time captures: every sync run
// inserts fresh rows keyed by CapturedAt and never mutates earlier ones,
// so history queries can diff consecutive captures.

// GuildSnapshot is a point-in-time capture of a guild profile.
type GuildSnapshot struct {
	ID uuid.UUID `json:"id"`

	GuildID      string `json:"guild_id"`
	Name         string `json:"name"`
	AllianceID   string `json:"alliance_id,omitempty"`
	AllianceName string `json:"alliance_name,omitempty"`

	MemberCount int   `json:"member_count"`
	KillFame    int64 `json:"kill_fame"`
	DeathFame   int64 `json:"death_fame"`

	CapturedAt time.Time `json:"captured_at"`
}

// GuildMember is one roster entry within a capture.
type GuildMember struct {
	ID uuid.UUID `json:"id"`

	GuildID    string `json:"guild_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`

	KillFame  int64   `json:"kill_fame"`
	DeathFame int64   `json:"death_fame"`
	ItemPower float64 `json:"item_power,omitempty"`

	CapturedAt time.Time `json:"captured_at"`
}

// GuildRanking is one leaderboard position observed during a sync run.
// Two runs produce two row sets distinguishable by CapturedAt.
type GuildRanking struct {
	ID uuid.UUID `json:"id"`

	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`

	Metric string `json:"metric"` // currently always "kill_fame"
	Range  string `json:"range"`  // day, week, or month
	Rank   int    `json:"rank"`
	Value  int64  `json:"value"`

	CapturedAt time.Time `json:"captured_at"`
}

// GuildBattle summarizes one guild's participation in one battle,
// derived from locally stored kill events during guild sync.
type GuildBattle struct {
	ID uuid.UUID `json:"id"`

	GuildID  string `json:"guild_id"`
	BattleID int64  `json:"battle_id"`

	Kills     int       `json:"kills"`
	Deaths    int       `json:"deaths"`
	Fame      int64     `json:"fame"`
	Zones     []string  `json:"zones,omitempty"`
	StartedAt time.Time `json:"started_at"`

	CapturedAt time.Time `json:"captured_at"`
}
