// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package upstream defines the wire shapes returned by the game-data API.
// Field names mirror the upstream JSON exactly; the validation package
// checks the declared constraints and normalizes these DTOs into the
// internal models.
package upstream

// KillEvent is one entry of GET /events.
type KillEvent struct {
	EventID             int64  `json:"EventId" validate:"required,gt=0"`
	Timestamp           string `json:"TimeStamp" validate:"required"`
	TotalVictimKillFame int64  `json:"TotalVictimKillFame" validate:"gte=0"`

	// BattleID is 0 when the kill was not part of a tracked battle.
	BattleID             int64  `json:"BattleId"`
	NumberOfParticipants int    `json:"numberOfParticipants" validate:"gte=0"`
	Location             string `json:"Location"`

	Killer *Participant `json:"Killer" validate:"required"`
	Victim *Participant `json:"Victim" validate:"required"`
}

// Participant is the killer or victim of a kill event.
type Participant struct {
	ID               string  `json:"Id" validate:"required"`
	Name             string  `json:"Name" validate:"required"`
	GuildID          string  `json:"GuildId"`
	GuildName        string  `json:"GuildName"`
	AllianceID       string  `json:"AllianceId"`
	AllianceName     string  `json:"AllianceName"`
	AverageItemPower float64 `json:"AverageItemPower" validate:"gte=0"`

	Equipment *Equipment `json:"Equipment"`

	// Inventory is only populated on victims.
	Inventory []*Item `json:"Inventory"`
}

// Equipment is the worn-item snapshot of a participant. Slots the
// upstream has no data for are null.
type Equipment struct {
	MainHand *Item `json:"MainHand"`
	OffHand  *Item `json:"OffHand"`
	Head     *Item `json:"Head"`
	Armor    *Item `json:"Armor"`
	Shoes    *Item `json:"Shoes"`
	Cape     *Item `json:"Cape"`
	Bag      *Item `json:"Bag"`
	Mount    *Item `json:"Mount"`
}

// Item is a single equipped or carried item.
type Item struct {
	Type    string `json:"Type" validate:"required"`
	Count   int    `json:"Count"`
	Quality int    `json:"Quality"`
}
