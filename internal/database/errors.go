// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/amerel/killboard/internal/logging"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a unique
	// constraint. The ingestion engine counts these as duplicates
	// rather than failures.
	ErrDuplicate = errors.New("duplicate record")
)

// isUniqueViolation reports whether err is a DuckDB unique constraint
// violation. The driver surfaces these as text, not typed errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint error")
}

// closeWithLog closes a resource and logs any error. For cleanup paths
// where a failed close should be visible but must not fail the operation.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error.
// For error paths where Close failures are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
