// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import "time"

// MetaBuild is one aggregated equipment archetype. Fingerprint is the
// normalized "weapon|head|armor|shoes|cape" string with tier prefixes and
// enchant suffixes stripped from every slot. The meta_builds table is
// fully replaced on each aggregation run; readers must treat it as
// read-only.
type MetaBuild struct {
	Fingerprint string `json:"fingerprint"`

	Weapon string `json:"weapon"`
	Head   string `json:"head"`
	Armor  string `json:"armor"`
	Shoes  string `json:"shoes"`
	Cape   string `json:"cape"`

	Kills  int64 `json:"kills"`
	Deaths int64 `json:"deaths"`

	// WinRate is kills/(kills+deaths); Popularity is the build's share of
	// all events processed in the producing run; AvgFame is total kill
	// fame divided by kills (0 when the build has no kills).
	WinRate    float64 `json:"win_rate"`
	Popularity float64 `json:"popularity"`
	AvgFame    float64 `json:"avg_fame"`

	SampleSize int64 `json:"sample_size"`
	IsHealer   bool  `json:"is_healer"`

	ComputedAt time.Time `json:"computed_at"`
}
