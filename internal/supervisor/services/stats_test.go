// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/amerel/killboard/internal/metrics"
)

type fakeConnStatser struct {
	inUse int
}

func (f *fakeConnStatser) Stats() sql.DBStats {
	return sql.DBStats{InUse: f.inUse}
}

type fakeEntryCounter struct {
	n int
}

func (f *fakeEntryCounter) Len() int { return f.n }

func TestStatsServiceSamplesGauges(t *testing.T) {
	conns := &fakeConnStatser{inUse: 3}
	caches := map[string]EntryCounter{"builds": &fakeEntryCounter{n: 17}}
	svc := NewStatsService(conns, caches, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// One sample runs before the first tick, so a canceled context still
	// populates the gauges.
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() = %v, want context.Canceled", err)
	}

	if got := testutil.ToFloat64(metrics.DBConnectionsInUse); got != 3 {
		t.Errorf("connections gauge = %f, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.CacheSize.WithLabelValues("builds")); got != 17 {
		t.Errorf("cache size gauge = %f, want 17", got)
	}
	if got := testutil.ToFloat64(metrics.AppUptime); got < 0 {
		t.Errorf("uptime gauge = %f, want non-negative", got)
	}
}

func TestStatsServiceNilSources(t *testing.T) {
	svc := NewStatsService(nil, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() = %v, want context.Canceled", err)
	}
}

func TestStatsServiceDefaultsInterval(t *testing.T) {
	svc := NewStatsService(nil, nil, 0)
	if svc.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s default", svc.interval)
	}
}
