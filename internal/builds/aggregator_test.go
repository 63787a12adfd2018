// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package builds

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/database"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// fakeBuildStore serves a fixed corpus in pages and records replacements.
type fakeBuildStore struct {
	mu sync.Mutex

	events   []models.KillEvent
	listErr  error
	blockCh  chan struct{}
	listHits int

	replaced      []models.MetaBuild
	replaceCalls  int
	lastBatchSize int
	replaceErr    error

	finished []*models.SyncRun
}

func (s *fakeBuildStore) ListKillEvents(ctx context.Context, f database.EventFilter) ([]models.KillEvent, error) {
	s.mu.Lock()
	s.listHits++
	block := s.blockCh
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.listErr != nil {
		return nil, s.listErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Offset >= len(s.events) {
		return nil, nil
	}
	end := f.Offset + f.Limit
	if end > len(s.events) {
		end = len(s.events)
	}
	page := make([]models.KillEvent, end-f.Offset)
	copy(page, s.events[f.Offset:end])
	return page, nil
}

func (s *fakeBuildStore) ReplaceMetaBuilds(ctx context.Context, builds []models.MetaBuild, batchSize int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	s.lastBatchSize = batchSize
	if s.replaceErr != nil {
		return 0, s.replaceErr
	}
	s.replaced = append([]models.MetaBuild(nil), builds...)
	return len(builds), nil
}

func (s *fakeBuildStore) InsertSyncRun(ctx context.Context, run *models.SyncRun) error {
	return nil
}

func (s *fakeBuildStore) FinishSyncRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, run)
	return nil
}

func (s *fakeBuildStore) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

func (s *fakeBuildStore) replacedBuilds() []models.MetaBuild {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MetaBuild(nil), s.replaced...)
}

type fakeBuildHub struct {
	mu        sync.Mutex
	progress  []string
	completed int
}

func (h *fakeBuildHub) BroadcastRunProgress(run *models.SyncRun, stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = append(h.progress, stage)
}

func (h *fakeBuildHub) BroadcastRunCompleted(run *models.SyncRun) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed++
}

type fakeClearCache struct {
	mu     sync.Mutex
	clears int
}

func (c *fakeClearCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

type fakeBuildAuditor struct {
	mu        sync.Mutex
	triggered []string
	completed int
	failed    []string
}

func (a *fakeBuildAuditor) LogSyncTriggered(kind, trigger string, runID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggered = append(a.triggered, kind+"/"+trigger)
}

func (a *fakeBuildAuditor) LogSyncCompleted(run *models.SyncRun) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completed++
}

func (a *fakeBuildAuditor) LogSyncFailed(run *models.SyncRun, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, reason)
}

func buildsTestConfig() *config.Config {
	return &config.Config{
		Builds: config.BuildsConfig{
			Enabled:       true,
			MaxEvents:     50000,
			MinSampleSize: 3,
			BatchSize:     100,
			HealerWeapons: config.DefaultHealerWeapons,
		},
	}
}

// kit returns a weapon+armor snapshot; empty weapon returns a naked kit.
func kit(weapon string) models.EquipmentSnapshot {
	if weapon == "" {
		return models.EquipmentSnapshot{}
	}
	return models.EquipmentSnapshot{
		MainHand: &models.EquipmentItem{Type: weapon},
		Armor:    &models.EquipmentItem{Type: "T8_ARMOR_PLATE_SET1"},
	}
}

func buildEvent(id int64, killerKit, victimKit models.EquipmentSnapshot, fame int64) models.KillEvent {
	return models.KillEvent{
		ID:        uuid.New(),
		EventID:   id,
		Timestamp: time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC),
		TotalFame: fame,
		Killer:    models.Participant{PlayerID: "pk", Name: "Killer", Equipment: killerKit},
		Victim:    models.Participant{PlayerID: "pv", Name: "Victim", Equipment: victimKit},
	}
}

func startAggregator(t *testing.T, store *fakeBuildStore, cfg *config.Config, hub *fakeBuildHub, cc *fakeClearCache, aud *fakeBuildAuditor) *Aggregator {
	t.Helper()
	var h Hub
	if hub != nil {
		h = hub
	}
	var c ResponseCache
	if cc != nil {
		c = cc
	}
	var au AuditSink
	if aud != nil {
		au = aud
	}
	a := NewAggregator(store, cfg, h, c, au)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		if a.Running() {
			_ = a.Stop()
		}
	})
	return a
}

func waitForAggregation(t *testing.T, store *fakeBuildStore, n int) *models.SyncRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for store.finishedCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %d finished runs, have %d", n, store.finishedCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.finished[n-1]
}

func TestAggregateWinRates(t *testing.T) {
	sword := kit("T8_MAIN_SWORD@1")
	axe := kit("T7_MAIN_AXE")

	store := &fakeBuildStore{events: []models.KillEvent{
		buildEvent(1, sword, axe, 10000),
		buildEvent(2, sword, axe, 14000),
		buildEvent(3, sword, axe, 6000),
		buildEvent(4, axe, sword, 8000),
	}}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)

	if !run.Success {
		t.Fatalf("Run failed: %s", run.Error)
	}
	if run.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", run.Fetched)
	}
	if run.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", run.Inserted)
	}

	builds := store.replacedBuilds()
	if len(builds) != 2 {
		t.Fatalf("Replaced builds = %d, want 2", len(builds))
	}

	byWeapon := make(map[string]models.MetaBuild, len(builds))
	for _, b := range builds {
		byWeapon[b.Weapon] = b
	}

	swordBuild, ok := byWeapon["MAIN_SWORD"]
	if !ok {
		t.Fatal("Missing MAIN_SWORD build")
	}
	if swordBuild.Kills != 3 || swordBuild.Deaths != 1 {
		t.Errorf("Sword kills/deaths = %d/%d, want 3/1", swordBuild.Kills, swordBuild.Deaths)
	}
	if swordBuild.WinRate != 0.75 {
		t.Errorf("Sword win rate = %v, want 0.75", swordBuild.WinRate)
	}
	if swordBuild.Popularity != 1.0 {
		t.Errorf("Sword popularity = %v, want 1.0 (4 samples over 4 events)", swordBuild.Popularity)
	}
	if swordBuild.AvgFame != 10000 {
		t.Errorf("Sword avg fame = %v, want 10000", swordBuild.AvgFame)
	}
	if swordBuild.SampleSize != 4 {
		t.Errorf("Sword sample size = %d, want 4", swordBuild.SampleSize)
	}
	if swordBuild.IsHealer {
		t.Error("Sword build must not be flagged healer")
	}
	if swordBuild.Fingerprint != "MAIN_SWORD|NONE|ARMOR_PLATE_SET1|NONE|NONE" {
		t.Errorf("Sword fingerprint = %q", swordBuild.Fingerprint)
	}

	axeBuild, ok := byWeapon["MAIN_AXE"]
	if !ok {
		t.Fatal("Missing MAIN_AXE build")
	}
	if axeBuild.WinRate != 0.25 {
		t.Errorf("Axe win rate = %v, want 0.25", axeBuild.WinRate)
	}
	if axeBuild.AvgFame != 8000 {
		t.Errorf("Axe avg fame = %v, want 8000", axeBuild.AvgFame)
	}
}

func TestAggregateHealerFlagAndZeroKills(t *testing.T) {
	holy := kit("T6_MAIN_HOLYSTAFF@2")

	// Three different killer weapons keep their samples below the floor.
	store := &fakeBuildStore{events: []models.KillEvent{
		buildEvent(1, kit("T8_MAIN_SWORD"), holy, 5000),
		buildEvent(2, kit("T8_MAIN_AXE"), holy, 5000),
		buildEvent(3, kit("T8_MAIN_SPEAR"), holy, 5000),
	}}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)
	if !run.Success {
		t.Fatalf("Run failed: %s", run.Error)
	}

	builds := store.replacedBuilds()
	if len(builds) != 1 {
		t.Fatalf("Replaced builds = %d, want 1 (killers below sample floor)", len(builds))
	}

	b := builds[0]
	if !b.IsHealer {
		t.Error("Holy staff build must be flagged healer")
	}
	if b.Kills != 0 || b.Deaths != 3 {
		t.Errorf("Kills/deaths = %d/%d, want 0/3", b.Kills, b.Deaths)
	}
	if b.WinRate != 0 {
		t.Errorf("Win rate = %v, want 0", b.WinRate)
	}
	if b.AvgFame != 0 {
		t.Errorf("Avg fame = %v, want 0 for a build with no kills", b.AvgFame)
	}
}

func TestAggregateDiscardsNakedFingerprints(t *testing.T) {
	headOnly := models.EquipmentSnapshot{
		Head:  &models.EquipmentItem{Type: "T4_HEAD_CLOTH_SET1"},
		Shoes: &models.EquipmentItem{Type: "T4_SHOES_CLOTH_SET1"},
	}
	sword := kit("T8_MAIN_SWORD")

	store := &fakeBuildStore{events: []models.KillEvent{
		buildEvent(1, headOnly, sword, 1000),
		buildEvent(2, headOnly, sword, 1000),
		buildEvent(3, headOnly, sword, 1000),
	}}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)
	if !run.Success {
		t.Fatalf("Run failed: %s", run.Error)
	}

	builds := store.replacedBuilds()
	if len(builds) != 1 {
		t.Fatalf("Replaced builds = %d, want 1 (naked killer discarded)", len(builds))
	}
	if builds[0].Weapon != "MAIN_SWORD" {
		t.Errorf("Kept build weapon = %q, want MAIN_SWORD", builds[0].Weapon)
	}
	if builds[0].Deaths != 3 {
		t.Errorf("Deaths = %d, want 3", builds[0].Deaths)
	}
}

func TestAggregateMinSampleFilter(t *testing.T) {
	store := &fakeBuildStore{events: []models.KillEvent{
		buildEvent(1, kit("T8_MAIN_SWORD"), kit("T8_MAIN_AXE"), 1000),
	}}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)

	if !run.Success {
		t.Fatalf("Run failed: %s", run.Error)
	}
	if len(store.replacedBuilds()) != 0 {
		t.Errorf("Replaced builds = %d, want 0 below sample floor", len(store.replacedBuilds()))
	}

	// The table swap still runs so stale rows are dropped.
	store.mu.Lock()
	calls := store.replaceCalls
	store.mu.Unlock()
	if calls != 1 {
		t.Errorf("Replace calls = %d, want 1", calls)
	}
}

func TestAggregatePaging(t *testing.T) {
	sword := kit("T8_MAIN_SWORD")
	axe := kit("T7_MAIN_AXE")
	events := make([]models.KillEvent, 0, 1050)
	for i := 0; i < 1050; i++ {
		events = append(events, buildEvent(int64(i+1), sword, axe, 1000))
	}

	store := &fakeBuildStore{events: events}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)

	if run.Fetched != 1050 {
		t.Errorf("Fetched = %d, want 1050", run.Fetched)
	}
	store.mu.Lock()
	hits := store.listHits
	store.mu.Unlock()
	if hits != 2 {
		t.Errorf("List calls = %d, want 2 (1000 + 50)", hits)
	}

	builds := store.replacedBuilds()
	if len(builds) != 2 {
		t.Fatalf("Replaced builds = %d, want 2", len(builds))
	}
	for _, b := range builds {
		if b.SampleSize != 1050 {
			t.Errorf("Build %s sample = %d, want 1050", b.Weapon, b.SampleSize)
		}
	}
}

func TestAggregateEventCap(t *testing.T) {
	sword := kit("T8_MAIN_SWORD")
	axe := kit("T7_MAIN_AXE")
	events := make([]models.KillEvent, 0, 1050)
	for i := 0; i < 1050; i++ {
		events = append(events, buildEvent(int64(i+1), sword, axe, 1000))
	}

	cfg := buildsTestConfig()
	cfg.Builds.MaxEvents = 500
	store := &fakeBuildStore{events: events}
	a := startAggregator(t, store, cfg, nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)

	if run.Fetched != 500 {
		t.Errorf("Fetched = %d, want cap 500", run.Fetched)
	}
	store.mu.Lock()
	hits := store.listHits
	store.mu.Unlock()
	if hits != 1 {
		t.Errorf("List calls = %d, want 1", hits)
	}
}

func TestAggregateRunRecordAndSideEffects(t *testing.T) {
	sword := kit("T8_MAIN_SWORD")
	axe := kit("T7_MAIN_AXE")
	store := &fakeBuildStore{events: []models.KillEvent{
		buildEvent(1, sword, axe, 1000),
		buildEvent(2, sword, axe, 1000),
		buildEvent(3, sword, axe, 1000),
	}}
	cfg := buildsTestConfig()
	cfg.Builds.BatchSize = 25
	hub := &fakeBuildHub{}
	cc := &fakeClearCache{}
	aud := &fakeBuildAuditor{}
	a := startAggregator(t, store, cfg, hub, cc, aud)

	run, err := a.TriggerRun(context.Background(), "")
	if err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	if run.Kind != models.RunKindBuilds {
		t.Errorf("Run kind = %q, want %q", run.Kind, models.RunKindBuilds)
	}
	if run.TriggerSource != models.TriggerAPI {
		t.Errorf("Trigger = %q, want %q", run.TriggerSource, models.TriggerAPI)
	}
	finished := waitForAggregation(t, store, 1)

	if !finished.Success {
		t.Fatalf("Run failed: %s", finished.Error)
	}
	if finished.FinishedAt == nil {
		t.Error("Expected FinishedAt to be set")
	}

	store.mu.Lock()
	batch := store.lastBatchSize
	store.mu.Unlock()
	if batch != 25 {
		t.Errorf("Batch size = %d, want configured 25", batch)
	}

	cc.mu.Lock()
	clears := cc.clears
	cc.mu.Unlock()
	if clears != 1 {
		t.Errorf("Cache clears = %d, want 1", clears)
	}

	hub.mu.Lock()
	wantStages := []string{"scanning_events", "computing_builds", "replacing_builds"}
	if len(hub.progress) != len(wantStages) {
		t.Errorf("Progress stages = %v, want %v", hub.progress, wantStages)
	} else {
		for i, stage := range wantStages {
			if hub.progress[i] != stage {
				t.Errorf("Progress[%d] = %q, want %q", i, hub.progress[i], stage)
			}
		}
	}
	if hub.completed != 1 {
		t.Errorf("Completed broadcasts = %d, want 1", hub.completed)
	}
	hub.mu.Unlock()

	aud.mu.Lock()
	if len(aud.triggered) != 1 || aud.triggered[0] != "builds/api" {
		t.Errorf("Audit triggered = %v, want [builds/api]", aud.triggered)
	}
	if aud.completed != 1 {
		t.Errorf("Audit completed = %d, want 1", aud.completed)
	}
	aud.mu.Unlock()
}

func TestAggregateReplaceFailure(t *testing.T) {
	store := &fakeBuildStore{
		events: []models.KillEvent{
			buildEvent(1, kit("T8_MAIN_SWORD"), kit("T7_MAIN_AXE"), 1000),
		},
		replaceErr: errors.New("table locked"),
	}
	aud := &fakeBuildAuditor{}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, aud)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	run := waitForAggregation(t, store, 1)

	if run.Success {
		t.Error("Expected failed run")
	}
	if run.Error == "" {
		t.Error("Expected error text on failed run")
	}

	aud.mu.Lock()
	defer aud.mu.Unlock()
	if len(aud.failed) != 1 {
		t.Errorf("Audit failures = %d, want 1", len(aud.failed))
	}
}

func TestAggregatorTriggerConflict(t *testing.T) {
	block := make(chan struct{})
	store := &fakeBuildStore{blockCh: block}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	if _, err := a.TriggerRun(context.Background(), ""); err != nil {
		t.Fatalf("First TriggerRun error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		hits := store.listHits
		store.mu.Unlock()
		if hits > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run never reached the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := a.TriggerRun(context.Background(), ""); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("Second TriggerRun error = %v, want ErrRunInProgress", err)
	}

	close(block)
	waitForAggregation(t, store, 1)
}

func TestAggregatorNotRunning(t *testing.T) {
	a := NewAggregator(&fakeBuildStore{}, buildsTestConfig(), nil, nil, nil)
	if _, err := a.TriggerRun(context.Background(), ""); !errors.Is(err, ErrNotRunning) {
		t.Errorf("TriggerRun error = %v, want ErrNotRunning", err)
	}
}

func TestAggregatorScheduledTrigger(t *testing.T) {
	store := &fakeBuildStore{}
	a := startAggregator(t, store, buildsTestConfig(), nil, nil, nil)

	run, err := a.TriggerRun(context.Background(), models.TriggerSchedule)
	if err != nil {
		t.Fatalf("TriggerRun error: %v", err)
	}
	if run.TriggerSource != models.TriggerSchedule {
		t.Errorf("Trigger = %q, want %q", run.TriggerSource, models.TriggerSchedule)
	}
	waitForAggregation(t, store, 1)
}
