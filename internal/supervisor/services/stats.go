// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/amerel/killboard/internal/metrics"
)

// ConnStatser reports connection pool statistics. *sql.DB satisfies it.
type ConnStatser interface {
	Stats() sql.DBStats
}

// EntryCounter reports how many entries a cache currently holds. Both
// cache types satisfy it.
type EntryCounter interface {
	Len() int
}

// StatsService refreshes the process-level gauges (uptime, database
// connections in use, cache sizes) on a fixed interval. The gauges are
// cheap reads, so failures are impossible and the service only exits on
// context cancellation.
type StatsService struct {
	conns    ConnStatser
	caches   map[string]EntryCounter
	interval time.Duration
	startAt  time.Time
}

// NewStatsService samples the given sources. Non-positive intervals get
// 30 seconds.
func NewStatsService(conns ConnStatser, caches map[string]EntryCounter, interval time.Duration) *StatsService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &StatsService{
		conns:    conns,
		caches:   caches,
		interval: interval,
		startAt:  time.Now(),
	}
}

// Serve implements suture.Service.
func (s *StatsService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *StatsService) sample() {
	metrics.AppUptime.Set(time.Since(s.startAt).Seconds())
	if s.conns != nil {
		metrics.DBConnectionsInUse.Set(float64(s.conns.Stats().InUse))
	}
	for name, counter := range s.caches {
		metrics.CacheSize.WithLabelValues(name).Set(float64(counter.Len()))
	}
}

func (s *StatsService) String() string { return "system-stats" }
