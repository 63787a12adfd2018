// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package guildsync tracks the guilds that matter: each run pulls the
// fame leaderboards for the day, week and month ranges, stores them as
// guild_rankings rows, and then walks the union of ranked guilds through
// a per-guild pipeline (profile snapshot, member roster, battle summary)
// on a bounded worker pool.
//
// Guilds are independent of each other. A failure in one guild's
// pipeline marks that guild failed and moves on; it never aborts the
// run or another guild's work. Battle summaries come from kill events
// already in local storage, not from extra upstream calls.
//
// Runs are scheduled via cron and can be triggered through the API;
// at most one runs at a time.
package guildsync
