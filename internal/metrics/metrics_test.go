// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramSampleCount reads the observation count of one histogram
// child. ToFloat64 only handles counters and gauges.
func histogramSampleCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	obs, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("failed to get histogram: %v", err)
	}
	var m io_prometheus_client.Metric
	if err := obs.(prometheus.Histogram).Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordDBQuery(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		table     string
		duration  time.Duration
		err       error
	}{
		{
			name:      "successful select",
			operation: "SELECT",
			table:     "kill_events",
			duration:  10 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "successful insert",
			operation: "INSERT",
			table:     "meta_builds",
			duration:  5 * time.Millisecond,
			err:       nil,
		},
		{
			name:      "failed query with short error",
			operation: "UPDATE",
			table:     "player_pvp_stats",
			duration:  100 * time.Millisecond,
			err:       errors.New("constraint violation"),
		},
		{
			name:      "failed query with long error truncated to 50 chars",
			operation: "DELETE",
			table:     "audit_log",
			duration:  50 * time.Millisecond,
			err:       errors.New(strings.Repeat("x", 120)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordDBQuery(tt.operation, tt.table, tt.duration, tt.err)
		})
	}
}

func TestRecordDBQueryErrorCounter(t *testing.T) {
	err := errors.New("unique constraint")
	before := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "kill_events", "unique constraint"))

	RecordDBQuery("INSERT", "kill_events", time.Millisecond, err)

	after := testutil.ToFloat64(DBQueryErrors.WithLabelValues("INSERT", "kill_events", "unique constraint"))
	if after != before+1 {
		t.Errorf("error counter = %f, want %f", after, before+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/builds", "200"))

	RecordAPIRequest("GET", "/api/v1/builds", "200", 25*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/builds", "200"))
	if after != before+1 {
		t.Errorf("request counter = %f, want %f", after, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active requests after inc = %f, want %f", got, before+1)
	}

	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active requests after dec = %f, want %f", got, before)
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("/events", "200"))

	RecordUpstreamRequest("/events", 200, 80*time.Millisecond)

	after := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues("/events", "200"))
	if after != before+1 {
		t.Errorf("upstream counter = %f, want %f", after, before+1)
	}
}

func TestRecordUpstreamError(t *testing.T) {
	classes := []string{"network", "http", "decode", "validation"}
	for _, class := range classes {
		before := testutil.ToFloat64(UpstreamErrors.WithLabelValues("/battles", class))
		RecordUpstreamError("/battles", class)
		after := testutil.ToFloat64(UpstreamErrors.WithLabelValues("/battles", class))
		if after != before+1 {
			t.Errorf("class %s: counter = %f, want %f", class, after, before+1)
		}
	}
}

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		err     error
		outcome string
	}{
		{"ingest success", "ingest", nil, "success"},
		{"ingest failure", "ingest", errors.New("upstream down"), "failure"},
		{"builds success", "builds", nil, "success"},
		{"guildsync failure", "guildsync", errors.New("leaderboard fetch failed"), "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(RunsTotal.WithLabelValues(tt.kind, tt.outcome))
			RecordRun(tt.kind, 3*time.Second, tt.err)
			after := testutil.ToFloat64(RunsTotal.WithLabelValues(tt.kind, tt.outcome))
			if after != before+1 {
				t.Errorf("runs counter = %f, want %f", after, before+1)
			}
		})
	}
}

func TestRecordRunObservesDuration(t *testing.T) {
	before := histogramSampleCount(t, RunDuration, "builds")

	RecordRun("builds", 7*time.Second, nil)

	after := histogramSampleCount(t, RunDuration, "builds")
	if after != before+1 {
		t.Errorf("run duration samples = %d, want %d", after, before+1)
	}
}

func TestRecordDBQueryObservesDuration(t *testing.T) {
	before := histogramSampleCount(t, DBQueryDuration, "SELECT", "battles")

	RecordDBQuery("SELECT", "battles", 3*time.Millisecond, nil)

	after := histogramSampleCount(t, DBQueryDuration, "SELECT", "battles")
	if after != before+1 {
		t.Errorf("db query duration samples = %d, want %d", after, before+1)
	}
}

func TestRecordRunSetsLastSuccess(t *testing.T) {
	RecordRun("ingest", time.Second, nil)

	ts := testutil.ToFloat64(RunLastSuccess.WithLabelValues("ingest"))
	now := float64(time.Now().Unix())
	if ts < now-5 || ts > now+5 {
		t.Errorf("last success timestamp = %f, want within 5s of %f", ts, now)
	}
}

func TestRecordIngestReport(t *testing.T) {
	fetchedBefore := testutil.ToFloat64(EventsFetched)
	insertedBefore := testutil.ToFloat64(EventsInserted)
	duplicateBefore := testutil.ToFloat64(EventsDuplicate)
	errorsBefore := testutil.ToFloat64(EventErrors)

	RecordIngestReport(100, 80, 18, 2)

	if got := testutil.ToFloat64(EventsFetched); got != fetchedBefore+100 {
		t.Errorf("fetched = %f, want %f", got, fetchedBefore+100)
	}
	if got := testutil.ToFloat64(EventsInserted); got != insertedBefore+80 {
		t.Errorf("inserted = %f, want %f", got, insertedBefore+80)
	}
	if got := testutil.ToFloat64(EventsDuplicate); got != duplicateBefore+18 {
		t.Errorf("duplicates = %f, want %f", got, duplicateBefore+18)
	}
	if got := testutil.ToFloat64(EventErrors); got != errorsBefore+2 {
		t.Errorf("errors = %f, want %f", got, errorsBefore+2)
	}
}

func TestRecordNATSPublish(t *testing.T) {
	okBefore := testutil.ToFloat64(NATSMessagesPublished)
	errBefore := testutil.ToFloat64(NATSPublishErrors)

	RecordNATSPublish(nil)
	RecordNATSPublish(errors.New("no responders"))

	if got := testutil.ToFloat64(NATSMessagesPublished); got != okBefore+1 {
		t.Errorf("published = %f, want %f", got, okBefore+1)
	}
	if got := testutil.ToFloat64(NATSPublishErrors); got != errBefore+1 {
		t.Errorf("publish errors = %f, want %f", got, errBefore+1)
	}
}

func TestBreakerHelpers(t *testing.T) {
	SetBreakerState("gameapi", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("gameapi")); got != 2 {
		t.Errorf("breaker state = %f, want 2", got)
	}

	before := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("gameapi", "closed", "open"))
	RecordBreakerTransition("gameapi", "closed", "open")
	after := testutil.ToFloat64(CircuitBreakerTransitions.WithLabelValues("gameapi", "closed", "open"))
	if after != before+1 {
		t.Errorf("transitions = %f, want %f", after, before+1)
	}

	reqBefore := testutil.ToFloat64(CircuitBreakerRequests.WithLabelValues("gameapi", "rejected"))
	RecordBreakerRequest("gameapi", "rejected")
	reqAfter := testutil.ToFloat64(CircuitBreakerRequests.WithLabelValues("gameapi", "rejected"))
	if reqAfter != reqBefore+1 {
		t.Errorf("breaker requests = %f, want %f", reqAfter, reqBefore+1)
	}
}

func TestCacheHelpers(t *testing.T) {
	hitBefore := testutil.ToFloat64(CacheHits.WithLabelValues("builds"))
	missBefore := testutil.ToFloat64(CacheMisses.WithLabelValues("builds"))

	RecordCacheHit("builds")
	RecordCacheMiss("builds")

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("builds")); got != hitBefore+1 {
		t.Errorf("cache hits = %f, want %f", got, hitBefore+1)
	}
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("builds")); got != missBefore+1 {
		t.Errorf("cache misses = %f, want %f", got, missBefore+1)
	}
}

func TestMetricsLint(t *testing.T) {
	RecordDBQuery("SELECT", "kill_events", time.Millisecond, nil)
	RecordAPIRequest("GET", "/api/v1/status", "200", time.Millisecond)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("lint gather error (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("lint: %s: %s", p.Metric, p.Text)
	}
}
