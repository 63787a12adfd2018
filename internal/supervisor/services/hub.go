// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import "context"

// BroadcastHub is the lifecycle surface of *websocket.Hub.
type BroadcastHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the WebSocket hub. The hub's run loop already
// speaks the Serve(ctx) contract, so this only adds the service name.
type HubService struct {
	hub BroadcastHub
}

// NewHubService wraps a hub.
func NewHubService(hub BroadcastHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string { return "websocket-hub" }
