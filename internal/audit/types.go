// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package audit records operator-relevant events: who triggered a sync
// run, how it ended, and which requests were turned away at the door.
// Events are written asynchronously so the hot paths never block on the
// audit trail.
package audit

import (
	"context"
	"time"

	"github.com/amerel/killboard/internal/models"
)

// EventType categorizes audit events.
type EventType string

const (
	// Sync run lifecycle events.
	EventTypeSyncTriggered EventType = "sync.triggered"
	EventTypeSyncCompleted EventType = "sync.completed"
	EventTypeSyncFailed    EventType = "sync.failed"

	// Authentication events.
	EventTypeAuthDenied EventType = "auth.denied"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Store persists audit events. *database.DB satisfies this; the
// indirection keeps the logger testable without a live DuckDB instance.
type Store interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
