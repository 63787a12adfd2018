// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package upstream

// Guild is the profile returned by GET /guilds/{id}.
type Guild struct {
	ID           string `json:"Id" validate:"required"`
	Name         string `json:"Name" validate:"required"`
	AllianceID   string `json:"AllianceId"`
	AllianceName string `json:"AllianceName"`

	MemberCount int   `json:"MemberCount" validate:"gte=0"`
	KillFame    int64 `json:"killFame" validate:"gte=0"`
	DeathFame   int64 `json:"DeathFame" validate:"gte=0"`
}

// GuildMember is one entry of GET /guilds/{id}/members.
type GuildMember struct {
	ID               string  `json:"Id" validate:"required"`
	Name             string  `json:"Name" validate:"required"`
	GuildID          string  `json:"GuildId"`
	KillFame         int64   `json:"KillFame" validate:"gte=0"`
	DeathFame        int64   `json:"DeathFame" validate:"gte=0"`
	AverageItemPower float64 `json:"AverageItemPower" validate:"gte=0"`
}

// GuildFameEntry is one entry of GET /events/guildfame. Rank is implied
// by position in the returned page.
type GuildFameEntry struct {
	GuildID   string `json:"GuildId" validate:"required"`
	GuildName string `json:"GuildName" validate:"required"`
	Total     int64  `json:"Total" validate:"gte=0"`
}
