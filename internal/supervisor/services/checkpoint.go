// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"time"

	"github.com/amerel/killboard/internal/logging"
)

// Checkpointer is the slice of *database.DB the service needs.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService periodically flushes the DuckDB write-ahead log
// into the database file. Without it the WAL grows for the lifetime of
// the process and crash recovery replays every ingested batch since
// startup.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
}

// NewCheckpointService wraps a database. Non-positive intervals get 15
// minutes.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &CheckpointService{db: db, interval: interval}
}

// Serve implements suture.Service. A failed checkpoint is logged and
// retried on the next tick rather than crashing the service; DuckDB
// recovers from the WAL either way.
func (s *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// One final flush so a clean shutdown leaves a compact file.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.db.Checkpoint(flushCtx); err != nil {
				logging.Warn().Err(err).Msg("Final checkpoint failed")
			}
			return ctx.Err()

		case <-ticker.C:
			start := time.Now()
			if err := s.db.Checkpoint(ctx); err != nil {
				logging.Warn().Err(err).Msg("Checkpoint failed")
				continue
			}
			logging.Debug().Dur("took", time.Since(start)).Msg("Database checkpoint complete")
		}
	}
}

func (s *CheckpointService) String() string { return "db-checkpoint" }
