// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package models

import (
	"time"

	"github.com/google/uuid"
)

// Run kinds recorded in sync_runs.
const (
	RunKindIngest    = "ingest"
	RunKindBuilds    = "builds"
	RunKindGuildSync = "guildsync"
)

// Trigger sources recorded in sync_runs.
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
	TriggerStartup  = "startup"
)

// SyncRun is the audit record of one engine run. Every ingestion, build
// aggregation, and guild sync run writes exactly one row, successful or
// not, so operators can spot silent degradation (rising Errors with flat
// Inserted).
type SyncRun struct {
	ID   uuid.UUID `json:"id"`
	Kind string    `json:"kind"`

	TriggerSource string     `json:"trigger_source"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`

	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewSyncRun starts a run record for the given kind and trigger source.
func NewSyncRun(kind, trigger string) *SyncRun {
	return &SyncRun{
		ID:            uuid.New(),
		Kind:          kind,
		TriggerSource: trigger,
		StartedAt:     time.Now().UTC(),
	}
}

// Finish stamps the run as completed. A non-empty errText marks the run
// failed and is stored verbatim.
func (r *SyncRun) Finish(errText string) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Success = errText == ""
	r.Error = errText
}
