// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package natspub publishes ingestion output to NATS for downstream
// consumers (Discord bots, alerting, external dashboards).
//
// Publishing is strictly fire-and-forget: a nil or disconnected publisher
// is a no-op, a failed publish is logged and counted, and ingestion never
// blocks on the broker. Killboard remains fully functional without NATS.
package natspub

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// Subjects carrying killboard traffic.
const (
	SubjectKillEvents = "killboard.events.kill"
	SubjectRuns       = "killboard.runs"
)

// Publisher writes kill events and run completions to NATS. All methods
// are safe on a nil receiver, so callers can hold one unconditionally and
// skip the enabled check.
type Publisher struct {
	conn *nats.Conn
}

// New connects to NATS when publishing is enabled. Returns (nil, nil) when
// disabled; the nil publisher is usable as a no-op.
func New(cfg *config.NATSConfig) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	name := cfg.Name
	if name == "" {
		name = "killboard"
	}
	flushTimeout := cfg.PublishTimeout
	if flushTimeout <= 0 {
		flushTimeout = 2 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.FlusherTimeout(flushTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	logging.Info().Str("url", cfg.URL).Msg("NATS publisher connected")
	return &Publisher{conn: conn}, nil
}

// PublishKillEvent sends one newly inserted kill event. Errors are logged
// and counted, never propagated to the ingestion path.
func (p *Publisher) PublishKillEvent(event *models.KillEvent) {
	p.publish(SubjectKillEvents, event)
}

// PublishRunCompleted sends a finished run record.
func (p *Publisher) PublishRunCompleted(run *models.SyncRun) {
	p.publish(SubjectRuns, run)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		metrics.RecordNATSPublish(err)
		logging.Error().Err(err).Str("subject", subject).Msg("Failed to marshal NATS payload")
		return
	}

	err = p.conn.Publish(subject, data)
	metrics.RecordNATSPublish(err)
	if err != nil {
		logging.Warn().Err(err).Str("subject", subject).Msg("NATS publish failed")
	}
}

// Close drains buffered messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		logging.Warn().Err(err).Msg("NATS drain failed, closing anyway")
		p.conn.Close()
	}
}
