// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is one security-relevant occurrence: a sync trigger, an auth
// denial, a completed or failed run. The audit package defines the event
// type and severity vocabularies; this is just the stored shape.
type AuditEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"`
	Outcome   string                 `json:"outcome"`
	Actor     string                 `json:"actor,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
