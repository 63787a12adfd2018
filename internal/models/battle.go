// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// Battle represents a larger engagement grouping many kill events.
// Battles are upserted by external BattleID: observing the same battle
// again overwrites the stored row with the latest totals.
type Battle struct {
	ID       uuid.UUID `json:"id"`
	BattleID int64     `json:"battle_id"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	TotalKills int   `json:"total_kills"`
	TotalFame  int64 `json:"total_fame"`

	// Roster snapshots per side. TotalPlayers is always
	// SideAPlayers + SideBPlayers.
	SideAPlayers int      `json:"side_a_players"`
	SideBPlayers int      `json:"side_b_players"`
	SideAIDs     []string `json:"side_a_ids,omitempty"`
	SideBIDs     []string `json:"side_b_ids,omitempty"`
	TotalPlayers int      `json:"total_players"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
