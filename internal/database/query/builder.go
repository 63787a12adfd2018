// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package query provides SQL construction helpers for the database
// package: parameterized WHERE clauses for the list endpoints and
// limit/offset normalization.
package query

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder accumulates parameterized WHERE conditions.
//
//	wb := query.NewWhereBuilder()
//	wb.AddGuild("G-123")
//	wb.AddTimeRange("event_time", &since, nil)
//	clause, args := wb.Build()
//	// " WHERE (killer_guild_id = ? OR victim_guild_id = ?) AND event_time >= ?"
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw condition fragment with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddTimeRange adds lower and/or upper bounds on a timestamp column.
// Nil bounds are skipped.
func (wb *WhereBuilder) AddTimeRange(column string, start, end *time.Time) *WhereBuilder {
	if start != nil {
		wb.clauses = append(wb.clauses, fmt.Sprintf("%s >= ?", column))
		wb.args = append(wb.args, *start)
	}
	if end != nil {
		wb.clauses = append(wb.clauses, fmt.Sprintf("%s <= ?", column))
		wb.args = append(wb.args, *end)
	}
	return wb
}

// AddGuild filters kill events to those a guild took part in, on either
// side of the fight.
func (wb *WhereBuilder) AddGuild(guildID string) *WhereBuilder {
	if guildID != "" {
		wb.clauses = append(wb.clauses, "(killer_guild_id = ? OR victim_guild_id = ?)")
		wb.args = append(wb.args, guildID, guildID)
	}
	return wb
}

// AddPlayer filters kill events to those a player appears in, as killer
// or victim.
func (wb *WhereBuilder) AddPlayer(playerID string) *WhereBuilder {
	if playerID != "" {
		wb.clauses = append(wb.clauses, "(killer_id = ? OR victim_id = ?)")
		wb.args = append(wb.args, playerID, playerID)
	}
	return wb
}

// AddBattle filters kill events to one battle.
func (wb *WhereBuilder) AddBattle(battleID int64) *WhereBuilder {
	if battleID > 0 {
		wb.clauses = append(wb.clauses, "battle_id = ?")
		wb.args = append(wb.args, battleID)
	}
	return wb
}

// AddIn adds a column IN (...) condition. Empty lists are skipped.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		wb.args = append(wb.args, v)
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

// Build returns the assembled clause (with leading " WHERE ", or empty
// when no conditions were added) and the bound arguments.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "", wb.args
	}
	return " WHERE " + strings.Join(wb.clauses, " AND "), wb.args
}

// Empty reports whether no conditions have been added.
func (wb *WhereBuilder) Empty() bool {
	return len(wb.clauses) == 0
}

// ClampPage normalizes limit/offset from query parameters. Non-positive
// limits fall back to defaultLimit; limits above maxLimit are capped;
// negative offsets become zero.
func ClampPage(limit, offset, defaultLimit, maxLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
