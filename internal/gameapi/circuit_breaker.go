// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package gameapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/amerel/killboard/internal/logging"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models/upstream"
)

// BreakerClient wraps a Fetcher with a circuit breaker so a flapping
// upstream fails fast instead of burning a page budget per run. The
// breaker rejects, it never retries; the no-retry contract of the client
// is preserved.
//
// The breaker uses real time for its interval and timeout windows. Tests
// exercise the wrapped client directly or drive the breaker through an
// httptest server.
type BreakerClient struct {
	client Fetcher
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient wraps client with breaker protection.
// Breaker settings:
//   - 3 concurrent probes in half-open state
//   - 1 minute measurement window while closed
//   - 2 minute open period before probing again
//   - trips at a 60% failure rate over at least 10 requests
func NewBreakerClient(client Fetcher) *BreakerClient {
	const cbName = "gameapi"

	metrics.SetBreakerState(cbName, 0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false // too few requests for a meaningful ratio
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.SetBreakerState(name, int(stateToFloat(to)))
			metrics.RecordBreakerTransition(name, fromStr, toStr)
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// State reports the current breaker state as closed, half-open or open.
func (bc *BreakerClient) State() string {
	return stateToString(bc.cb.State())
}

// execute runs one upstream call through the breaker and records the
// outcome.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordBreakerRequest(bc.name, "rejected")
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.RecordBreakerRequest(bc.name, "failure")
		}
		return nil, err
	}

	metrics.RecordBreakerRequest(bc.name, "success")
	return result, nil
}

// castResult type-asserts a breaker result. Returns the zero value of T
// with an error when the assertion fails.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Ping verifies connectivity with breaker protection.
func (bc *BreakerClient) Ping(ctx context.Context) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Ping(ctx)
	})
	return err
}

// FetchKillEvents retrieves paginated kill events with breaker protection.
func (bc *BreakerClient) FetchKillEvents(ctx context.Context, target int) ([]upstream.KillEvent, error) {
	return castResult[[]upstream.KillEvent](bc.execute(func() (interface{}, error) {
		return bc.client.FetchKillEvents(ctx, target)
	}))
}

// FetchBattles retrieves paginated battles with breaker protection.
func (bc *BreakerClient) FetchBattles(ctx context.Context, timeRange string, target int) ([]upstream.Battle, error) {
	return castResult[[]upstream.Battle](bc.execute(func() (interface{}, error) {
		return bc.client.FetchBattles(ctx, timeRange, target)
	}))
}

// GetGuild retrieves a guild profile with breaker protection.
func (bc *BreakerClient) GetGuild(ctx context.Context, guildID string) (*upstream.Guild, error) {
	return castResult[*upstream.Guild](bc.execute(func() (interface{}, error) {
		return bc.client.GetGuild(ctx, guildID)
	}))
}

// GetGuildMembers retrieves a guild roster with breaker protection.
func (bc *BreakerClient) GetGuildMembers(ctx context.Context, guildID string) ([]upstream.GuildMember, error) {
	return castResult[[]upstream.GuildMember](bc.execute(func() (interface{}, error) {
		return bc.client.GetGuildMembers(ctx, guildID)
	}))
}

// FetchGuildFameLeaderboard retrieves fame leaderboard entries with
// breaker protection.
func (bc *BreakerClient) FetchGuildFameLeaderboard(ctx context.Context, timeRange string, target int) ([]upstream.GuildFameEntry, error) {
	return castResult[[]upstream.GuildFameEntry](bc.execute(func() (interface{}, error) {
		return bc.client.FetchGuildFameLeaderboard(ctx, timeRange, target)
	}))
}

// FetchMarketPrices retrieves market price entries with breaker protection.
func (bc *BreakerClient) FetchMarketPrices(ctx context.Context, items, locations []string) ([]upstream.MarketPrice, error) {
	return castResult[[]upstream.MarketPrice](bc.execute(func() (interface{}, error) {
		return bc.client.FetchMarketPrices(ctx, items, locations)
	}))
}
