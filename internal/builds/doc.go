// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package builds derives the meta_builds table from stored kill events.
//
// Each aggregation run scans the event corpus in pages, fingerprints the
// killer and victim equipment of every event, accumulates per-fingerprint
// kill/death/fame counters and rewrites the whole table. The job is not
// incremental: popularity is each build's share of the corpus considered
// in that run, so partial updates would skew the ratios.
//
// Runs are scheduled via cron and can be triggered through the API. At
// most one aggregation executes at a time.
package builds
