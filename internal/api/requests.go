// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
)

// maxRequestBodyBytes bounds request bodies. The largest legitimate
// payload is a market scan price list; one megabyte fits roughly ten
// thousand entries.
const maxRequestBodyBytes = 1 << 20

// decodeJSONBody decodes the request body into dst. An empty body is
// fine: dst keeps its zero values so endpoints with all-optional
// bodies accept bare POSTs.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when the
// parameter is absent or not a number.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// queryBool reads a boolean query parameter. Absent or unparseable
// values are false.
func queryBool(r *http.Request, name string) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return v
}

// parsePagination reads limit and offset, clamping limit to the same
// window the storage layer enforces so pagination metadata stays
// truthful.
func parsePagination(r *http.Request, defaultLimit, maxLimit int) (limit, offset int) {
	limit = queryInt(r, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset = queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// validTimeRange reports whether rng names a leaderboard window.
func validTimeRange(rng string) bool {
	switch rng {
	case "day", "week", "month":
		return true
	default:
		return false
	}
}
