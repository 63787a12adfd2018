// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"errors"
	"testing"
)

type fakeHub struct {
	err error
}

func (f *fakeHub) RunWithContext(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHubServiceDelegates(t *testing.T) {
	want := errors.New("hub crashed")
	svc := NewHubService(&fakeHub{err: want})

	if err := svc.Serve(context.Background()); !errors.Is(err, want) {
		t.Errorf("Serve() = %v, want %v", err, want)
	}
}

func TestHubServiceStopsWithContext(t *testing.T) {
	svc := NewHubService(&fakeHub{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
}

func TestHubServiceString(t *testing.T) {
	svc := NewHubService(&fakeHub{})
	if svc.String() != "websocket-hub" {
		t.Errorf("String() = %q, want websocket-hub", svc.String())
	}
}
