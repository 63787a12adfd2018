// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/models"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool

	// LogLevel filters events by minimum severity.
	LogLevel Severity

	// RetentionDays is how long to keep audit rows.
	RetentionDays int

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration

	// BufferSize is the size of the async write buffer.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      256,
	}
}

// Logger is the audit logging service. Events are queued onto a buffered
// channel and written by a single background goroutine, so callers on the
// request path pay one channel send.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *models.AuditEvent
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its async writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.LogLevel == "" {
		config.LogLevel = SeverityInfo
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *models.AuditEvent, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events before exiting
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *models.AuditEvent) {
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.InsertAuditEvent(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_type", event.EventType).Msg("Failed to save audit event")
	}
}

// Log records an audit event. The event is dropped with a warning when the
// buffer is full; audit writes must never stall ingestion or API requests.
func (l *Logger) Log(event *models.AuditEvent) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled {
		return
	}

	if !l.shouldLog(Severity(event.Severity), config) {
		return
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_type", event.EventType).Msg("Audit event buffer full, dropping event")
	}
}

// shouldLog returns true if the event severity meets the minimum level.
func (l *Logger) shouldLog(severity Severity, config *Config) bool {
	severityOrder := map[Severity]int{
		SeverityInfo:    0,
		SeverityWarning: 1,
		SeverityError:   2,
	}

	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close shuts down the logger gracefully, draining any buffered events.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()
	return nil
}

// StartCleanupRoutine deletes audit rows older than the retention window
// on a fixed interval. The goroutine exits when ctx is canceled.
func (l *Logger) StartCleanupRoutine(ctx context.Context) {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	if interval <= 0 || retention <= 0 || l.store == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retention)
				count, err := l.store.DeleteAuditEventsBefore(ctx, cutoff)
				if err != nil {
					logging.Error().Err(err).Msg("Audit cleanup error")
				} else if count > 0 {
					logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
				}
			}
		}
	}()
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

// Helper methods for the events killboard actually emits.

// LogSyncTriggered records a manually or schedule-triggered sync run.
func (l *Logger) LogSyncTriggered(kind, trigger string, runID uuid.UUID) {
	l.Log(&models.AuditEvent{
		EventType: string(EventTypeSyncTriggered),
		Severity:  string(SeverityInfo),
		Outcome:   string(OutcomeSuccess),
		Actor:     trigger,
		Resource:  kind,
		Details: map[string]interface{}{
			"kind":    kind,
			"trigger": trigger,
			"run_id":  runID.String(),
		},
	})
}

// LogSyncCompleted records a finished run with its counters.
func (l *Logger) LogSyncCompleted(run *models.SyncRun) {
	if run == nil {
		return
	}
	l.Log(&models.AuditEvent{
		EventType: string(EventTypeSyncCompleted),
		Severity:  string(SeverityInfo),
		Outcome:   string(OutcomeSuccess),
		Actor:     run.TriggerSource,
		Resource:  run.Kind,
		Details: map[string]interface{}{
			"run_id":     run.ID.String(),
			"fetched":    run.Fetched,
			"inserted":   run.Inserted,
			"duplicates": run.Duplicates,
			"errors":     run.Errors,
		},
	})
}

// LogSyncFailed records a run that ended with an error.
func (l *Logger) LogSyncFailed(run *models.SyncRun, reason string) {
	if run == nil {
		return
	}
	l.Log(&models.AuditEvent{
		EventType: string(EventTypeSyncFailed),
		Severity:  string(SeverityError),
		Outcome:   string(OutcomeFailure),
		Actor:     run.TriggerSource,
		Resource:  run.Kind,
		Details: map[string]interface{}{
			"run_id": run.ID.String(),
			"reason": reason,
		},
	})
}

// LogAuthDenied records a rejected request. The actor is the client IP
// since denied requests have no authenticated identity.
func (l *Logger) LogAuthDenied(r *http.Request, reason string) {
	event := &models.AuditEvent{
		EventType: string(EventTypeAuthDenied),
		Severity:  string(SeverityWarning),
		Outcome:   string(OutcomeFailure),
		Details: map[string]interface{}{
			"reason": reason,
		},
	}
	if r != nil {
		event.Actor = clientIP(r)
		event.Resource = r.URL.Path
		if ua := r.UserAgent(); ua != "" {
			event.Details["user_agent"] = ua
		}
	}
	l.Log(event)
}

// clientIP extracts the originating client address, honoring the usual
// proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
