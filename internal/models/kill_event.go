// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package models defines the data structures persisted and served by
// Killboard: kill events, battles, player and guild statistics, guild
// snapshots, meta builds, and sync run records.
package models

import (
	"time"

	"github.com/google/uuid"
)

// KillEvent represents a single PvP kill observed on the upstream
// killboard. Events are written at most once per external EventID; the
// ingestion engine deduplicates against the kill_events.event_id unique
// index before insert.
type KillEvent struct {
	// ID is the internal UUID primary key. EventID is the upstream
	// identifier used for deduplication.
	ID      uuid.UUID `json:"id"`
	EventID int64     `json:"event_id"`

	Timestamp time.Time `json:"timestamp"`

	// BattleID links the kill to a larger engagement when the upstream
	// reported one.
	BattleID     *int64 `json:"battle_id,omitempty"`
	Participants int    `json:"participants"`

	// TotalFame is the fame value of the kill (victim kill fame).
	TotalFame int64  `json:"total_fame"`
	Location  string `json:"location,omitempty"`

	Killer Participant `json:"killer"`
	Victim Participant `json:"victim"`

	// VictimInventory snapshots the victim's carried items at death.
	VictimInventory []InventoryItem `json:"victim_inventory,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Participant identifies one side of a kill together with an equipment
// snapshot taken at the time of the event.
type Participant struct {
	PlayerID     string  `json:"player_id"`
	Name         string  `json:"name"`
	GuildID      string  `json:"guild_id,omitempty"`
	GuildName    string  `json:"guild_name,omitempty"`
	AllianceID   string  `json:"alliance_id,omitempty"`
	AllianceName string  `json:"alliance_name,omitempty"`
	ItemPower    float64 `json:"item_power"`

	Equipment EquipmentSnapshot `json:"equipment"`
}

// EquipmentSnapshot holds the worn items of a participant. The five
// tracked slots (MainHand, Head, Armor, Shoes, Cape) feed build
// fingerprints; the rest are stored for display only.
type EquipmentSnapshot struct {
	MainHand *EquipmentItem `json:"main_hand,omitempty"`
	OffHand  *EquipmentItem `json:"off_hand,omitempty"`
	Head     *EquipmentItem `json:"head,omitempty"`
	Armor    *EquipmentItem `json:"armor,omitempty"`
	Shoes    *EquipmentItem `json:"shoes,omitempty"`
	Cape     *EquipmentItem `json:"cape,omitempty"`
	Bag      *EquipmentItem `json:"bag,omitempty"`
	Mount    *EquipmentItem `json:"mount,omitempty"`
}

// EquipmentItem is a single equipped item. Type carries the raw upstream
// identifier including tier prefix and enchant suffix (e.g.
// "T6_MAIN_SWORD@3").
type EquipmentItem struct {
	Type    string `json:"type"`
	Count   int    `json:"count"`
	Quality int    `json:"quality"`
}

// InventoryItem is a single carried (not worn) item.
type InventoryItem struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}
