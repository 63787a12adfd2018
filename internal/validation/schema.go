// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package validation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/models"
	"github.com/amerel/killboard/internal/models/upstream"
)

// SchemaError marks a structurally invalid upstream payload. Callers
// treat these as item-level failures: count and skip, never abort the
// batch.
type SchemaError struct {
	Payload string // payload type: kill_event, battle, guild, ...
	Reason  string
	Err     error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s payload: %s: %v", e.Payload, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Payload, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// upstreamTimeLayouts lists the timestamp formats the game-data API has
// been observed to emit. Zoneless values are interpreted as UTC.
var upstreamTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseUpstreamTime parses an upstream timestamp string.
func ParseUpstreamTime(value string) (time.Time, error) {
	for _, layout := range upstreamTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// NormalizeKillEvent validates an upstream kill event and maps it onto
// the internal model. The returned event carries a fresh internal UUID.
func NormalizeKillEvent(dto *upstream.KillEvent) (*models.KillEvent, error) {
	if dto == nil {
		return nil, &SchemaError{Payload: "kill_event", Reason: "nil payload"}
	}
	if verr := ValidateStruct(dto); verr != nil {
		return nil, &SchemaError{Payload: "kill_event", Reason: "schema violation", Err: verr}
	}

	ts, err := ParseUpstreamTime(dto.Timestamp)
	if err != nil {
		return nil, &SchemaError{Payload: "kill_event", Reason: "bad timestamp", Err: err}
	}

	event := &models.KillEvent{
		ID:           uuid.New(),
		EventID:      dto.EventID,
		Timestamp:    ts,
		Participants: dto.NumberOfParticipants,
		TotalFame:    dto.TotalVictimKillFame,
		Location:     dto.Location,
		Killer:       normalizeParticipant(dto.Killer),
		Victim:       normalizeParticipant(dto.Victim),
		CreatedAt:    time.Now().UTC(),
	}

	if dto.BattleID != 0 {
		battleID := dto.BattleID
		event.BattleID = &battleID
	}

	for _, item := range dto.Victim.Inventory {
		if item == nil || item.Type == "" {
			continue
		}
		event.VictimInventory = append(event.VictimInventory, models.InventoryItem{
			Type:  item.Type,
			Count: defaultCount(item.Count),
		})
	}

	return event, nil
}

// normalizeParticipant maps an upstream participant, filling defaults for
// the optional guild/alliance fields and absent equipment slots.
func normalizeParticipant(dto *upstream.Participant) models.Participant {
	p := models.Participant{
		PlayerID:     dto.ID,
		Name:         dto.Name,
		GuildID:      dto.GuildID,
		GuildName:    dto.GuildName,
		AllianceID:   dto.AllianceID,
		AllianceName: dto.AllianceName,
		ItemPower:    dto.AverageItemPower,
	}

	if dto.Equipment != nil {
		p.Equipment = models.EquipmentSnapshot{
			MainHand: normalizeItem(dto.Equipment.MainHand),
			OffHand:  normalizeItem(dto.Equipment.OffHand),
			Head:     normalizeItem(dto.Equipment.Head),
			Armor:    normalizeItem(dto.Equipment.Armor),
			Shoes:    normalizeItem(dto.Equipment.Shoes),
			Cape:     normalizeItem(dto.Equipment.Cape),
			Bag:      normalizeItem(dto.Equipment.Bag),
			Mount:    normalizeItem(dto.Equipment.Mount),
		}
	}

	return p
}

func normalizeItem(item *upstream.Item) *models.EquipmentItem {
	if item == nil || item.Type == "" {
		return nil
	}
	return &models.EquipmentItem{
		Type:    item.Type,
		Count:   defaultCount(item.Count),
		Quality: item.Quality,
	}
}

// defaultCount treats missing or nonsense counts as a single item.
func defaultCount(count int) int {
	if count < 1 {
		return 1
	}
	return count
}

// NormalizeBattle validates an upstream battle and maps it onto the
// internal model. TotalPlayers is derived from the two side rosters.
func NormalizeBattle(dto *upstream.Battle) (*models.Battle, error) {
	if dto == nil {
		return nil, &SchemaError{Payload: "battle", Reason: "nil payload"}
	}
	if verr := ValidateStruct(dto); verr != nil {
		return nil, &SchemaError{Payload: "battle", Reason: "schema violation", Err: verr}
	}

	startedAt, err := ParseUpstreamTime(dto.StartTime)
	if err != nil {
		return nil, &SchemaError{Payload: "battle", Reason: "bad start time", Err: err}
	}

	now := time.Now().UTC()
	battle := &models.Battle{
		ID:           uuid.New(),
		BattleID:     dto.ID,
		StartedAt:    startedAt,
		TotalKills:   dto.TotalKills,
		TotalFame:    dto.TotalFame,
		SideAPlayers: len(dto.Attackers),
		SideBPlayers: len(dto.Defenders),
		SideAIDs:     dto.Attackers,
		SideBIDs:     dto.Defenders,
		TotalPlayers: len(dto.Attackers) + len(dto.Defenders),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if dto.EndTime != "" {
		endedAt, err := ParseUpstreamTime(dto.EndTime)
		if err != nil {
			return nil, &SchemaError{Payload: "battle", Reason: "bad end time", Err: err}
		}
		battle.EndedAt = &endedAt
	}

	return battle, nil
}

// NormalizeGuild validates a guild profile and maps it onto a snapshot
// row stamped with capturedAt.
func NormalizeGuild(dto *upstream.Guild, capturedAt time.Time) (*models.GuildSnapshot, error) {
	if dto == nil {
		return nil, &SchemaError{Payload: "guild", Reason: "nil payload"}
	}
	if verr := ValidateStruct(dto); verr != nil {
		return nil, &SchemaError{Payload: "guild", Reason: "schema violation", Err: verr}
	}

	return &models.GuildSnapshot{
		ID:           uuid.New(),
		GuildID:      dto.ID,
		Name:         dto.Name,
		AllianceID:   dto.AllianceID,
		AllianceName: dto.AllianceName,
		MemberCount:  dto.MemberCount,
		KillFame:     dto.KillFame,
		DeathFame:    dto.DeathFame,
		CapturedAt:   capturedAt,
	}, nil
}

// NormalizeGuildMember validates a roster entry. The member's guild id
// defaults to guildID when the upstream omits it.
func NormalizeGuildMember(dto *upstream.GuildMember, guildID string, capturedAt time.Time) (*models.GuildMember, error) {
	if dto == nil {
		return nil, &SchemaError{Payload: "guild_member", Reason: "nil payload"}
	}
	if verr := ValidateStruct(dto); verr != nil {
		return nil, &SchemaError{Payload: "guild_member", Reason: "schema violation", Err: verr}
	}

	gid := dto.GuildID
	if gid == "" {
		gid = guildID
	}

	return &models.GuildMember{
		ID:         uuid.New(),
		GuildID:    gid,
		PlayerID:   dto.ID,
		PlayerName: dto.Name,
		KillFame:   dto.KillFame,
		DeathFame:  dto.DeathFame,
		ItemPower:  dto.AverageItemPower,
		CapturedAt: capturedAt,
	}, nil
}

// NormalizeGuildFameEntry validates a leaderboard entry and maps it onto
// an append-only ranking row. Rank is the 1-based position within the
// fetched leaderboard.
func NormalizeGuildFameEntry(dto *upstream.GuildFameEntry, rng string, rank int, capturedAt time.Time) (*models.GuildRanking, error) {
	if dto == nil {
		return nil, &SchemaError{Payload: "guild_fame_entry", Reason: "nil payload"}
	}
	if verr := ValidateStruct(dto); verr != nil {
		return nil, &SchemaError{Payload: "guild_fame_entry", Reason: "schema violation", Err: verr}
	}
	if rank < 1 {
		return nil, &SchemaError{Payload: "guild_fame_entry", Reason: fmt.Sprintf("rank must be >= 1, got %d", rank)}
	}

	return &models.GuildRanking{
		ID:         uuid.New(),
		GuildID:    dto.GuildID,
		GuildName:  dto.GuildName,
		Metric:     "kill_fame",
		Range:      rng,
		Rank:       rank,
		Value:      dto.Total,
		CapturedAt: capturedAt,
	}, nil
}
