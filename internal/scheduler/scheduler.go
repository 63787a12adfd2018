// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package scheduler drives the ingestion, build aggregation and guild
// sync engines on their configured cron schedules. Jobs only trigger
// runs; the engines own execution, so a tick that lands while the
// previous run is still in flight is reported by the engine and logged
// here, never stacked.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amerel/killboard/internal/logging"
)

// Job is one scheduled trigger. An empty Schedule disables the job.
// Schedules are standard 5-field cron expressions, the same format the
// config layer validates.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// JobStatus is a point-in-time view of one registered job.
type JobStatus struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
}

type jobEntry struct {
	job Job
	id  cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries []*jobEntry
	baseCtx context.Context
}

// New creates a stopped scheduler. Panics inside jobs are recovered and
// logged rather than taking the process down.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{}))),
		baseCtx: context.Background(),
	}
}

// Register adds a job. A job with an empty schedule is logged and
// skipped; an unparsable schedule is an error.
func (s *Scheduler) Register(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if job.Schedule == "" {
		logging.Info().Str("job", job.Name).Msg("Scheduled job disabled (no schedule)")
		return nil
	}

	entry := &jobEntry{job: job}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.runJob(entry) })
	if err != nil {
		return fmt.Errorf("invalid schedule for job %q: %w", job.Name, err)
	}
	entry.id = id

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()

	logging.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("Scheduled job registered")
	return nil
}

// Start begins dispatching ticks. ctx is handed to every job trigger.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	count := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	logging.Info().Int("jobs", count).Msg("Scheduler started")
}

// Stop halts dispatch and waits for any job trigger still executing.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logging.Info().Msg("Scheduler stopped")
}

// Snapshot reports every registered job with its next and last run.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.entries))
	for _, entry := range s.entries {
		entry.mu.Lock()
		status := JobStatus{
			Name:     entry.job.Name,
			Schedule: entry.job.Schedule,
			NextRun:  s.cron.Entry(entry.id).Next,
			LastRun:  entry.lastRun,
			LastErr:  entry.lastErr,
		}
		entry.mu.Unlock()
		out = append(out, status)
	}
	return out
}

// runJob fires one trigger and records the outcome. Triggering is cheap
// (runs execute in the engines' own goroutines), so ticks never pile up
// here.
func (s *Scheduler) runJob(entry *jobEntry) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	err := entry.job.Run(ctx)

	entry.mu.Lock()
	entry.lastRun = time.Now().UTC()
	if err != nil {
		entry.lastErr = err.Error()
	} else {
		entry.lastErr = ""
	}
	entry.mu.Unlock()

	if err != nil {
		logging.Warn().Err(err).Str("job", entry.job.Name).Msg("Scheduled trigger did not start a run")
		return
	}
	logging.Debug().Str("job", entry.job.Name).Msg("Scheduled trigger fired")
}

// cronLogger adapts the structured logger to the cron runner, which only
// speaks up on recovered panics and internal scheduling noise.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug().Interface("details", keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error().Err(err).Interface("details", keysAndValues).Msg("cron: " + msg)
}
