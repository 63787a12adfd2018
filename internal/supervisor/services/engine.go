// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"fmt"
)

// Engine is the shared lifecycle of the ingest manager, the build
// aggregator and the guild sync engine. Start returns once the engine
// accepts runs; Stop cancels any in-flight run and waits for it to
// record its outcome.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
}

// EngineService adapts an engine's Start/Stop lifecycle to suture.
// A Start failure is returned immediately so the supervisor restarts
// the engine under its backoff policy.
type EngineService struct {
	engine Engine
	name   string
}

// NewEngineService wraps an engine. The name shows up in supervisor
// logs, typically "ingest-manager", "build-aggregator" or
// "guildsync-engine".
func NewEngineService(name string, engine Engine) *EngineService {
	return &EngineService{engine: engine, name: name}
}

// Serve implements suture.Service.
func (s *EngineService) Serve(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()

	if err := s.engine.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	return ctx.Err()
}

func (s *EngineService) String() string { return s.name }
