// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package upstream

// Battle is one entry of GET /battles.
type Battle struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime"`

	TotalKills int   `json:"totalKills" validate:"gte=0"`
	TotalFame  int64 `json:"totalFame" validate:"gte=0"`

	// Player id rosters per side.
	Attackers []string `json:"attackers"`
	Defenders []string `json:"defenders"`
}
