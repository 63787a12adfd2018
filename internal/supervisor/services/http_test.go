// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeHTTPServer struct {
	listenErr error

	mu           sync.Mutex
	done         chan struct{}
	shutdownSeen bool
}

func newFakeHTTPServer(listenErr error) *fakeHTTPServer {
	return &fakeHTTPServer{listenErr: listenErr, done: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.done
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(_ context.Context) error {
	f.mu.Lock()
	f.shutdownSeen = true
	f.mu.Unlock()
	close(f.done)
	return nil
}

func (f *fakeHTTPServer) shutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownSeen
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newFakeHTTPServer(nil)
	svc := NewHTTPService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	// Give the listener goroutine a moment to start.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if !server.shutdownCalled() {
		t.Error("expected Shutdown to be called")
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := newFakeHTTPServer(errors.New("bind: address already in use"))
	svc := NewHTTPService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected error when listen fails")
	}
	if !strings.Contains(err.Error(), "http server failed") {
		t.Errorf("error = %v, want http server failed wrap", err)
	}
}

func TestHTTPServiceDefaultsShutdownTimeout(t *testing.T) {
	svc := NewHTTPService(newFakeHTTPServer(nil), 0)
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s default", svc.shutdownTimeout)
	}
}

func TestHTTPServiceString(t *testing.T) {
	svc := NewHTTPService(newFakeHTTPServer(nil), time.Second)
	if svc.String() != "http-server" {
		t.Errorf("String() = %q, want http-server", svc.String())
	}
}
