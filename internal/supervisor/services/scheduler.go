// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import "context"

// CronScheduler is the lifecycle surface of *scheduler.Scheduler.
type CronScheduler interface {
	Start(ctx context.Context)
	Stop()
}

// SchedulerService supervises the cron scheduler. Stop drains any
// trigger still executing before returning, so shutdown never leaves a
// half-fired job behind.
type SchedulerService struct {
	scheduler CronScheduler
}

// NewSchedulerService wraps a scheduler.
func NewSchedulerService(scheduler CronScheduler) *SchedulerService {
	return &SchedulerService{scheduler: scheduler}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	s.scheduler.Start(ctx)
	<-ctx.Done()
	s.scheduler.Stop()
	return ctx.Err()
}

func (s *SchedulerService) String() string { return "cron-scheduler" }
