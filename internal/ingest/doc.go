// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package ingest pulls kill events and battles from the upstream game API
// and persists them with derived player and guild statistics.
//
// The Manager runs at most one ingestion run at a time. Runs are triggered
// manually through the API, by the cron scheduler, or once at startup, and
// each run is recorded as a sync_runs row. Ingestion is idempotent: events
// are deduplicated by their upstream event id (an in-process LRU in front
// of the UNIQUE index), so replaying overlapping pages costs duplicate
// counter increments and nothing else.
//
// Failure policy: one bad item never aborts a run. Per-item errors are
// counted, logged, and skipped; the next scheduled run naturally retries
// whatever the upstream still returns.
package ingest
