// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Loading order (koanf v2 layers, later layers override earlier ones):
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH)
//  3. Environment variables (KILLBOARD_* prefix)
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Auth      AuthConfig      `koanf:"auth"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Builds    BuildsConfig    `koanf:"builds"`
	GuildSync GuildSyncConfig `koanf:"guildsync"`
	Market    MarketConfig    `koanf:"market"`
	Database  DatabaseConfig  `koanf:"database"`
	NATS      NATSConfig      `koanf:"nats"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Audit     AuditConfig     `koanf:"audit"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AuthConfig holds authorization settings for mutating endpoints.
//
// Modes:
//   - none:  no authorization (a startup warning is logged)
//   - token: shared secret compared constant-time against
//     Authorization: Bearer <secret> or X-Sync-Token
//   - basic: HTTP Basic with a bcrypt password hash
//   - jwt:   HS256 tokens signed with the shared secret
type AuthConfig struct {
	Mode              string `koanf:"mode"`
	SyncToken         string `koanf:"sync_token"`
	BasicUser         string `koanf:"basic_user"`
	BasicPasswordHash string `koanf:"basic_password_hash"`
	JWTAudience       string `koanf:"jwt_audience"`
}

// UpstreamConfig holds the game-data API client settings.
type UpstreamConfig struct {
	BaseURL        string        `koanf:"base_url"`
	PageSize       int           `koanf:"page_size"`
	PageInterval   time.Duration `koanf:"page_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	UserAgent      string        `koanf:"user_agent"`
}

// IngestConfig holds kill-event and battle ingestion settings.
//
// Schedule is a standard 5-field cron expression; an empty string
// disables the scheduled job (manual triggers still work).
type IngestConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Schedule      string `koanf:"schedule"`
	KillsTarget   int    `koanf:"kills_target"`
	BattlesTarget int    `koanf:"battles_target"`
	BattleRange   string `koanf:"battle_range"` // day, week, or month
}

// BuildsConfig holds build aggregation settings.
type BuildsConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Schedule      string   `koanf:"schedule"`
	MaxEvents     int      `koanf:"max_events"`      // cap on events scanned per aggregation run
	MinSampleSize int      `koanf:"min_sample_size"` // builds below this kills+deaths are dropped
	BatchSize     int      `koanf:"batch_size"`      // meta_builds insert batch size
	HealerWeapons []string `koanf:"healer_weapons"`  // weapon identifiers marking healer builds
}

// GuildSyncConfig holds guild snapshot sync settings.
type GuildSyncConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Schedule        string `koanf:"schedule"`
	MaxGuilds       int    `koanf:"max_guilds"`       // safety cap on guilds processed per run
	Workers         int    `koanf:"workers"`          // concurrent guild workers
	LeaderboardSize int    `koanf:"leaderboard_size"` // fame leaderboard entries fetched per range
	BattleScanLimit int    `koanf:"battle_scan_limit"`
}

// MarketConfig holds market opportunity scanner settings.
type MarketConfig struct {
	Enabled    bool `koanf:"enabled"`
	MaxResults int  `koanf:"max_results"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path        string `koanf:"path"`
	Threads     int    `koanf:"threads"`       // 0 = DuckDB decides
	MaxMemoryMB int    `koanf:"max_memory_mb"` // 0 = DuckDB decides
	AccessMode  string `koanf:"access_mode"`   // read_write or read_only

	// SkipIndexes skips secondary index creation. Tests use it for fast
	// setup; unique constraints still apply since they live in the DDL.
	SkipIndexes bool `koanf:"skip_indexes"`
}

// NATSConfig holds optional event publishing settings.
// Publishing is fire-and-forget; ingestion never blocks on NATS.
type NATSConfig struct {
	Enabled        bool          `koanf:"enabled"`
	URL            string        `koanf:"url"`
	Name           string        `koanf:"name"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// WebSocketConfig holds run-progress broadcasting settings.
type WebSocketConfig struct {
	Enabled bool `koanf:"enabled"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	RetentionDays int  `koanf:"retention_days"`
}

// CORSConfig holds cross-origin settings for the read API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig holds per-IP request rate limits.
// Mutating (trigger) routes get the stricter bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `koanf:"requests_per_minute"`
	TriggerPerMinute  int `koanf:"trigger_per_minute"`
}

// DefaultHealerWeapons lists the healing-staff weapon identifiers used to
// flag healer builds. Matching is case-insensitive substring matching
// against the normalized weapon component.
var DefaultHealerWeapons = []string{
	"HOLYSTAFF",
	"DIVINESTAFF",
	"SMITESTAFF",
	"FALLENSTAFF",
	"REDEMPTIONSTAFF",
	"LIFETOUCHSTAFF",
	"HALLOWFALL",
	"NATURESTAFF",
	"WILDSTAFF",
	"DRUIDSTAFF",
	"RAMPANTSTAFF",
	"IRONROOTSTAFF",
}
