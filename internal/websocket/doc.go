// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package websocket implements the live push channel for the killboard.
//
// A single Hub fans messages out to every connected browser client. The
// ingestion and aggregation engines push run lifecycle updates and fresh
// kill events into the hub; clients subscribe by connecting to /ws and
// receive every broadcast. There are no per-client subscriptions: the
// message volume is low enough that filtering happens client-side.
//
// The hub is supervised. RunWithContext returns when its context is
// canceled so the supervision tree can restart or stop it cleanly, and
// all client connections are closed as part of that shutdown.
package websocket
