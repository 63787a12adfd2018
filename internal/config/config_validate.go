// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := c.validateIngest(); err != nil {
		return err
	}

	if err := c.validateBuilds(); err != nil {
		return err
	}

	if err := c.validateGuildSync(); err != nil {
		return err
	}

	if err := c.validateMarket(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	if err := c.validateRateLimit(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("KILLBOARD_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("KILLBOARD_SERVER_READ_TIMEOUT must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("KILLBOARD_SERVER_WRITE_TIMEOUT must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("KILLBOARD_SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	switch c.Auth.Mode {
	case "none":
		return nil
	case "token", "jwt":
		if c.Auth.SyncToken == "" {
			return fmt.Errorf("KILLBOARD_SYNC_TOKEN is required when auth mode is %q", c.Auth.Mode)
		}
		if len(c.Auth.SyncToken) < 16 {
			return fmt.Errorf("KILLBOARD_SYNC_TOKEN too short (expected 16+ characters)")
		}
		return nil
	case "basic":
		if c.Auth.BasicUser == "" {
			return fmt.Errorf("KILLBOARD_AUTH_BASIC_USER is required when auth mode is basic")
		}
		if !strings.HasPrefix(c.Auth.BasicPasswordHash, "$2") {
			return fmt.Errorf("KILLBOARD_AUTH_BASIC_PASSWORD_HASH must be a bcrypt hash")
		}
		return nil
	default:
		return fmt.Errorf("KILLBOARD_AUTH_MODE must be one of none, token, basic, jwt; got %q", c.Auth.Mode)
	}
}

func (c *Config) validateUpstream() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("KILLBOARD_UPSTREAM_BASE_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("KILLBOARD_UPSTREAM_BASE_URL is invalid: %w", err)
	}
	if c.Upstream.PageSize < 1 || c.Upstream.PageSize > 1000 {
		return fmt.Errorf("KILLBOARD_UPSTREAM_PAGE_SIZE must be between 1 and 1000, got %d", c.Upstream.PageSize)
	}
	if c.Upstream.PageInterval <= 0 {
		return fmt.Errorf("KILLBOARD_UPSTREAM_PAGE_INTERVAL must be positive")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("KILLBOARD_UPSTREAM_REQUEST_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.KillsTarget < 0 {
		return fmt.Errorf("KILLBOARD_INGEST_KILLS_TARGET must be >= 0, got %d", c.Ingest.KillsTarget)
	}
	if c.Ingest.BattlesTarget < 0 {
		return fmt.Errorf("KILLBOARD_INGEST_BATTLES_TARGET must be >= 0, got %d", c.Ingest.BattlesTarget)
	}
	if !validRange(c.Ingest.BattleRange) {
		return fmt.Errorf("KILLBOARD_INGEST_BATTLE_RANGE must be one of day, week, month; got %q", c.Ingest.BattleRange)
	}
	return validateSchedule("KILLBOARD_INGEST_SCHEDULE", c.Ingest.Schedule)
}

func (c *Config) validateBuilds() error {
	if c.Builds.MaxEvents < 1 {
		return fmt.Errorf("KILLBOARD_BUILDS_MAX_EVENTS must be >= 1, got %d", c.Builds.MaxEvents)
	}
	if c.Builds.MinSampleSize < 1 {
		return fmt.Errorf("KILLBOARD_BUILDS_MIN_SAMPLE_SIZE must be >= 1, got %d", c.Builds.MinSampleSize)
	}
	if c.Builds.BatchSize < 1 {
		return fmt.Errorf("KILLBOARD_BUILDS_BATCH_SIZE must be >= 1, got %d", c.Builds.BatchSize)
	}
	return validateSchedule("KILLBOARD_BUILDS_SCHEDULE", c.Builds.Schedule)
}

func (c *Config) validateGuildSync() error {
	if c.GuildSync.MaxGuilds < 1 {
		return fmt.Errorf("KILLBOARD_GUILDSYNC_MAX_GUILDS must be >= 1, got %d", c.GuildSync.MaxGuilds)
	}
	if c.GuildSync.Workers < 1 {
		return fmt.Errorf("KILLBOARD_GUILDSYNC_WORKERS must be >= 1, got %d", c.GuildSync.Workers)
	}
	if c.GuildSync.LeaderboardSize < 1 {
		return fmt.Errorf("KILLBOARD_GUILDSYNC_LEADERBOARD_SIZE must be >= 1, got %d", c.GuildSync.LeaderboardSize)
	}
	if c.GuildSync.BattleScanLimit < 1 {
		return fmt.Errorf("KILLBOARD_GUILDSYNC_BATTLE_SCAN_LIMIT must be >= 1, got %d", c.GuildSync.BattleScanLimit)
	}
	return validateSchedule("KILLBOARD_GUILDSYNC_SCHEDULE", c.GuildSync.Schedule)
}

// maxMarketResults is the hard cap on scan results regardless of config.
const maxMarketResults = 200

func (c *Config) validateMarket() error {
	if c.Market.MaxResults < 1 || c.Market.MaxResults > maxMarketResults {
		return fmt.Errorf("KILLBOARD_MARKET_MAX_RESULTS must be between 1 and %d, got %d", maxMarketResults, c.Market.MaxResults)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("KILLBOARD_DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("KILLBOARD_DATABASE_THREADS must be >= 0, got %d", c.Database.Threads)
	}
	if c.Database.MaxMemoryMB < 0 {
		return fmt.Errorf("KILLBOARD_DATABASE_MAX_MEMORY_MB must be >= 0, got %d", c.Database.MaxMemoryMB)
	}
	if c.Database.AccessMode != "read_write" && c.Database.AccessMode != "read_only" {
		return fmt.Errorf("KILLBOARD_DATABASE_ACCESS_MODE must be read_write or read_only, got %q", c.Database.AccessMode)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("KILLBOARD_NATS_URL is required when NATS is enabled")
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil {
		return fmt.Errorf("KILLBOARD_NATS_URL is invalid: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("KILLBOARD_NATS_URL scheme must be nats, tls, ws, or wss; got %q", u.Scheme)
	}
	if c.NATS.PublishTimeout <= 0 {
		return fmt.Errorf("KILLBOARD_NATS_PUBLISH_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("KILLBOARD_RATELIMIT_REQUESTS_PER_MINUTE must be >= 1, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.RateLimit.TriggerPerMinute < 1 {
		return fmt.Errorf("KILLBOARD_RATELIMIT_TRIGGER_PER_MINUTE must be >= 1, got %d", c.RateLimit.TriggerPerMinute)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("KILLBOARD_LOG_LEVEL must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("KILLBOARD_LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateSchedule parses a standard 5-field cron expression. Empty
// schedules are allowed and disable the job.
func validateSchedule(name, schedule string) error {
	if schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("%s is not a valid cron expression: %w", name, err)
	}
	return nil
}

// validateHTTPURL checks that a URL is absolute with an http(s) scheme.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// validRange reports whether r is an accepted time range selector.
func validRange(r string) bool {
	return r == "day" || r == "week" || r == "month"
}
