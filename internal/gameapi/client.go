// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

// Package gameapi is the client for the upstream game-data API: paginated
// kill event and battle feeds, guild profiles and rosters, fame
// leaderboards, and market prices.
//
// The client never retries. A non-2xx response or decode failure aborts
// the fetch and surfaces as a typed error; the engines pick the same data
// up again on their next scheduled run. Page requests are paced by a
// rate.Limiter so target sizes translate into a predictable request rate
// against the shared public API.
package gameapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/amerel/killboard/internal/config"
	"github.com/amerel/killboard/internal/metrics"
	"github.com/amerel/killboard/internal/models/upstream"
)

// maxErrorBodySize limits how much of a failed response body is kept for
// error reporting, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024 // 64KB

// UpstreamError is a non-2xx response from the game-data API. It aborts
// the fetch that hit it; callers decide whether the run survives.
type UpstreamError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// readBodyForError reads a response body for error reporting (max 64KB).
// Returns the body content or a placeholder if reading fails.
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// Fetcher is the surface the ingestion, guild sync, and market components
// consume. Client implements it directly; BreakerClient wraps it with
// circuit breaker protection.
type Fetcher interface {
	Ping(ctx context.Context) error
	FetchKillEvents(ctx context.Context, target int) ([]upstream.KillEvent, error)
	FetchBattles(ctx context.Context, timeRange string, target int) ([]upstream.Battle, error)
	GetGuild(ctx context.Context, guildID string) (*upstream.Guild, error)
	GetGuildMembers(ctx context.Context, guildID string) ([]upstream.GuildMember, error)
	FetchGuildFameLeaderboard(ctx context.Context, timeRange string, target int) ([]upstream.GuildFameEntry, error)
	FetchMarketPrices(ctx context.Context, items, locations []string) ([]upstream.MarketPrice, error)
}

// Client talks to the upstream game-data REST API.
//
// Thread safety: safe for concurrent use; each request builds its own
// http.Request, and the shared limiter serializes page pacing.
type Client struct {
	baseURL   string
	userAgent string
	pageSize  int
	client    *http.Client
	limiter   *rate.Limiter
}

// New creates a game-data API client from upstream config. The limiter
// admits one request per page_interval with a burst of one, so the first
// page of a run goes out immediately and the rest are paced.
func New(cfg *config.UpstreamConfig) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	interval := cfg.PageInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		pageSize:  pageSize,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
	}
}

// get performs one paced GET against path and decodes the JSON body into
// result. endpoint is the metric label (logical name, never an ID-bearing
// path, to keep label cardinality flat).
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordUpstreamError(endpoint, "network")
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := readBodyForError(resp.Body)
		metrics.RecordUpstreamError(endpoint, "http")
		return &UpstreamError{
			Status:   resp.StatusCode,
			Endpoint: endpoint,
			Body:     string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		metrics.RecordUpstreamError(endpoint, "decode")
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// Ping verifies connectivity by requesting a single-event page.
func (c *Client) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("limit", "1")
	params.Set("offset", "0")

	var events []upstream.KillEvent
	if err := c.get(ctx, "events", "/events", params, &events); err != nil {
		return fmt.Errorf("failed to ping game-data API: %w", err)
	}
	return nil
}

// FetchKillEvents accumulates kill events from the paginated /events feed
// until at least target items are collected or a short page signals the
// end of available data. Any page failure aborts the whole fetch.
func (c *Client) FetchKillEvents(ctx context.Context, target int) ([]upstream.KillEvent, error) {
	if target <= 0 {
		return nil, nil
	}

	collected := make([]upstream.KillEvent, 0, target)
	for offset := 0; len(collected) < target; offset += c.pageSize {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page []upstream.KillEvent
		if err := c.get(ctx, "events", "/events", params, &page); err != nil {
			return nil, err
		}
		metrics.UpstreamPagesFetched.WithLabelValues("events").Inc()

		collected = append(collected, page...)
		if len(page) < c.pageSize {
			break
		}
	}
	return collected, nil
}

// FetchBattles accumulates battles from the paginated /battles feed for a
// time range (day, week, or month), newest first.
func (c *Client) FetchBattles(ctx context.Context, timeRange string, target int) ([]upstream.Battle, error) {
	if target <= 0 {
		return nil, nil
	}

	collected := make([]upstream.Battle, 0, target)
	for offset := 0; len(collected) < target; offset += c.pageSize {
		params := url.Values{}
		params.Set("range", timeRange)
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Set("sort", "recent")

		var page []upstream.Battle
		if err := c.get(ctx, "battles", "/battles", params, &page); err != nil {
			return nil, err
		}
		metrics.UpstreamPagesFetched.WithLabelValues("battles").Inc()

		collected = append(collected, page...)
		if len(page) < c.pageSize {
			break
		}
	}
	return collected, nil
}

// GetGuild returns a guild profile.
func (c *Client) GetGuild(ctx context.Context, guildID string) (*upstream.Guild, error) {
	var guild upstream.Guild
	if err := c.get(ctx, "guilds", "/guilds/"+url.PathEscape(guildID), nil, &guild); err != nil {
		return nil, err
	}
	return &guild, nil
}

// GetGuildMembers returns a guild's current roster.
func (c *Client) GetGuildMembers(ctx context.Context, guildID string) ([]upstream.GuildMember, error) {
	var members []upstream.GuildMember
	if err := c.get(ctx, "guild_members", "/guilds/"+url.PathEscape(guildID)+"/members", nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// FetchGuildFameLeaderboard accumulates guild fame leaderboard entries for
// a time range. Rank is implied by position in the combined result.
func (c *Client) FetchGuildFameLeaderboard(ctx context.Context, timeRange string, target int) ([]upstream.GuildFameEntry, error) {
	if target <= 0 {
		return nil, nil
	}

	collected := make([]upstream.GuildFameEntry, 0, target)
	for offset := 0; len(collected) < target; offset += c.pageSize {
		params := url.Values{}
		params.Set("range", timeRange)
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page []upstream.GuildFameEntry
		if err := c.get(ctx, "guild_fame", "/events/guildfame", params, &page); err != nil {
			return nil, err
		}
		metrics.UpstreamPagesFetched.WithLabelValues("guild_fame").Inc()

		collected = append(collected, page...)
		if len(page) < c.pageSize {
			break
		}
	}
	if len(collected) > target {
		collected = collected[:target]
	}
	return collected, nil
}

// FetchMarketPrices returns current price entries for the given items and
// locations. Used when a market scan is asked to pull live data instead of
// being handed a payload.
func (c *Client) FetchMarketPrices(ctx context.Context, items, locations []string) ([]upstream.MarketPrice, error) {
	params := url.Values{}
	if len(items) > 0 {
		params.Set("items", strings.Join(items, ","))
	}
	if len(locations) > 0 {
		params.Set("locations", strings.Join(locations, ","))
	}

	var prices []upstream.MarketPrice
	if err := c.get(ctx, "prices", "/prices", params, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}
