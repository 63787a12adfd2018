// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

/*
Package api exposes killboard's HTTP surface: the read API over
aggregated PvP data, the trigger endpoints for the three engines, the
market scanner, and the WebSocket feed.

All JSON endpoints answer in one envelope:

	{
	  "success": true,
	  "data": ...,
	  "error": {"code": "...", "message": "..."},
	  "meta": {"request_id": "...", "timestamp": "...", "pagination": {...}}
	}

Read endpoints are public. Trigger endpoints, the market scanner and
the audit listing sit behind the auth guard and a stricter rate
bucket. Handlers depend on the narrow Store interface rather than the
concrete database type so they can be tested without DuckDB.

Routing is chi; the router composes the middleware stack (request ID,
real IP, panic recovery, CORS, security headers, Prometheus, latency
window, gzip) per route group. The WebSocket endpoint stays outside
the instrumented groups because an upgraded connection lives for hours
and would pin the active-request gauge.
*/
package api
