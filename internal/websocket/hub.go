// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	// This may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types pushed to WebSocket clients.
const (
	MessageTypeKillEvent    = "kill_event"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeRunProgress  = "run_progress"
	MessageTypeRunCompleted = "run_completed"
	MessageTypeStatsUpdate  = "stats_update"
	MessageTypeGuildState   = "guild_state"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext starts the hub with context support for graceful shutdown.
// This method is designed for use with suture supervision.
//
// When the context is canceled:
//  1. All connected clients are gracefully closed
//  2. The method returns ctx.Err()
//
// This allows the hub to be restarted by a supervisor without leaving
// orphaned connections.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Broadcast messages
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Go's select picks randomly when several channels are ready, so
		// each tier is drained with a non-blocking check before the next
		// is allowed to proceed.

		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
			// Context not canceled, continue
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
			// No lifecycle events pending
		}

		// Priority 3: Handle broadcast messages or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WSConnections.Dec()
	}
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// logGracefulShutdown closes all connected clients and logs structured
// shutdown information.
//
// Note: ctx.Err() is NOT logged as an error because context cancellation
// is expected behavior during graceful shutdown. Logging it as .Err() would
// confuse operators monitoring error logs.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()

	h.closeAllClients()

	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		// Fallback for any future context error types
		return ShutdownReasonContextCanceled
	}
}

// broadcastToClients sends a message to all connected clients in a
// deterministic order.
//
// DETERMINISM: Clients are sorted by their monotonically increasing IDs so
// delivery order is reproducible. Map iteration order would vary between
// runs and make test failures impossible to reproduce.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	// Track clients to remove (can't modify map during iteration)
	var toRemove []*Client

	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			// Channel full or closed, mark for removal
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
		metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
	}
}

// closeAllClients gracefully closes all connected WebSocket clients.
// Called during shutdown to ensure clean termination.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastKillEvent pushes a freshly ingested kill to all connected clients.
// The hub never blocks the ingestion path: if the broadcast buffer is full
// the message is dropped.
func (h *Hub) BroadcastKillEvent(event *models.KillEvent) {
	message := Message{
		Type: MessageTypeKillEvent,
		Data: event,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping kill_event message")
	}
}

// BroadcastJSON sends a JSON message to all connected clients
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping JSON message")
	}
}

// RunProgressData represents data sent with run_progress messages.
type RunProgressData struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"`
	Stage      string `json:"stage"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}

// BroadcastRunProgress notifies all clients of sync run progress. The stage
// names the phase the run is in ("fetching", "storing", "aggregating", ...).
func (h *Hub) BroadcastRunProgress(run *models.SyncRun, stage string) {
	if run == nil {
		return
	}

	data := RunProgressData{
		RunID:      run.ID.String(),
		Kind:       run.Kind,
		Stage:      stage,
		Fetched:    run.Fetched,
		Inserted:   run.Inserted,
		Duplicates: run.Duplicates,
		Errors:     run.Errors,
	}

	message := Message{
		Type: MessageTypeRunProgress,
		Data: data,
	}

	select {
	case h.broadcast <- message:
		logging.Debug().
			Int("clients", h.GetClientCount()).
			Str("kind", run.Kind).
			Str("stage", stage).
			Msg("broadcast run_progress")
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping run_progress message")
	}
}

// RunCompletedData represents data sent with run_completed messages.
type RunCompletedData struct {
	RunID      string `json:"run_id"`
	Kind       string `json:"kind"`
	Success    bool   `json:"success"`
	Fetched    int    `json:"fetched"`
	Inserted   int    `json:"inserted"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// BroadcastRunCompleted notifies all clients that a sync run has finished,
// successfully or not.
func (h *Hub) BroadcastRunCompleted(run *models.SyncRun) {
	if run == nil {
		return
	}

	var durationMs int64
	if run.FinishedAt != nil {
		durationMs = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}

	data := RunCompletedData{
		RunID:      run.ID.String(),
		Kind:       run.Kind,
		Success:    run.Success,
		Fetched:    run.Fetched,
		Inserted:   run.Inserted,
		Duplicates: run.Duplicates,
		Errors:     run.Errors,
		DurationMs: durationMs,
		Error:      run.Error,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	message := Message{
		Type: MessageTypeRunCompleted,
		Data: data,
	}

	select {
	case h.broadcast <- message:
		logging.Info().
			Int("clients", h.GetClientCount()).
			Str("kind", run.Kind).
			Bool("success", run.Success).
			Int("inserted", run.Inserted).
			Msg("broadcast run_completed")
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping run_completed message")
	}
}

// GuildStateData represents data sent with guild_state messages. One frame
// is pushed for every state transition of a guild during a sync run.
type GuildStateData struct {
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name,omitempty"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// BroadcastGuildState pushes one guild's sync state transition.
func (h *Hub) BroadcastGuildState(guildID, guildName, state, errText string) {
	data := GuildStateData{
		GuildID:   guildID,
		GuildName: guildName,
		State:     state,
		Error:     errText,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	message := Message{
		Type: MessageTypeGuildState,
		Data: data,
	}

	select {
	case h.broadcast <- message:
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping guild_state message")
	}
}

// StatsUpdateData represents data sent with stats_update messages.
type StatsUpdateData struct {
	Timestamp   string `json:"timestamp"`
	TotalEvents int64  `json:"total_events"`
	LastEventAt string `json:"last_event_at,omitempty"`
}

// BroadcastStatsUpdate notifies all clients that aggregate counters changed.
func (h *Hub) BroadcastStatsUpdate(totalEvents int64, lastEventAt string) {
	data := StatsUpdateData{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TotalEvents: totalEvents,
		LastEventAt: lastEventAt,
	}

	message := Message{
		Type: MessageTypeStatsUpdate,
		Data: data,
	}

	select {
	case h.broadcast <- message:
		logging.Info().Int("clients", h.GetClientCount()).Int64("total_events", totalEvents).Msg("broadcast stats_update")
	default:
		metrics.WSErrors.WithLabelValues("broadcast_channel_full").Inc()
		logging.Warn().Msg("broadcast channel full, dropping stats_update message")
	}
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
