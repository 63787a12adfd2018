// Killboard - PvP Combat Analytics and Meta Build Aggregation
// Copyright 2026 A. Merel (amerel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amerel/killboard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/killboard/config.yaml",
	"/etc/killboard/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces all environment overrides.
const envPrefix = "KILLBOARD_"

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Mode:              "token",
			SyncToken:         "",
			BasicUser:         "",
			BasicPasswordHash: "",
			JWTAudience:       "",
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://gameinfo.albiononline.com/api/gameinfo",
			PageSize:       50,
			PageInterval:   250 * time.Millisecond,
			RequestTimeout: 15 * time.Second,
			UserAgent:      "killboard/1.0",
		},
		Ingest: IngestConfig{
			Enabled:       true,
			Schedule:      "*/5 * * * *",
			KillsTarget:   100,
			BattlesTarget: 50,
			BattleRange:   "day",
		},
		Builds: BuildsConfig{
			Enabled:       true,
			Schedule:      "10 * * * *",
			MaxEvents:     50000,
			MinSampleSize: 3,
			BatchSize:     100,
			HealerWeapons: DefaultHealerWeapons,
		},
		GuildSync: GuildSyncConfig{
			Enabled:         true,
			Schedule:        "30 */6 * * *",
			MaxGuilds:       40,
			Workers:         8,
			LeaderboardSize: 20,
			BattleScanLimit: 500,
		},
		Market: MarketConfig{
			Enabled:    true,
			MaxResults: 50,
		},
		Database: DatabaseConfig{
			Path:        "/data/killboard.duckdb",
			Threads:     0,
			MaxMemoryMB: 0,
			AccessMode:  "read_write",
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			Name:           "killboard",
			PublishTimeout: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			TriggerPerMinute:  10,
		},
	}
}

// Load builds configuration from layered sources:
//  1. Defaults from defaultConfig()
//  2. Optional YAML config file
//  3. KILLBOARD_* environment variables (highest priority)
//
// The result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// KILLBOARD_UPSTREAM_PAGE_SIZE -> upstream.page_size
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the path of the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as strings from the environment.
var sliceConfigPaths = []string{
	"builds.healer_weapons",
	"cors.allowed_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from defaults or YAML), nothing to do.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps KILLBOARD_* environment variable names onto koanf
// config paths. Unmapped keys return "" and are skipped, so unrelated
// environment variables never pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		// Server
		"server_host":             "server.host",
		"server_port":             "server.port",
		"server_read_timeout":     "server.read_timeout",
		"server_write_timeout":    "server.write_timeout",
		"server_shutdown_timeout": "server.shutdown_timeout",

		// Auth
		"auth_mode":                "auth.mode",
		"sync_token":               "auth.sync_token",
		"auth_basic_user":          "auth.basic_user",
		"auth_basic_password_hash": "auth.basic_password_hash",
		"auth_jwt_audience":        "auth.jwt_audience",

		// Upstream game-data API
		"upstream_base_url":        "upstream.base_url",
		"upstream_page_size":       "upstream.page_size",
		"upstream_page_interval":   "upstream.page_interval",
		"upstream_request_timeout": "upstream.request_timeout",
		"upstream_user_agent":      "upstream.user_agent",

		// Ingestion
		"ingest_enabled":        "ingest.enabled",
		"ingest_schedule":       "ingest.schedule",
		"ingest_kills_target":   "ingest.kills_target",
		"ingest_battles_target": "ingest.battles_target",
		"ingest_battle_range":   "ingest.battle_range",

		// Build aggregation
		"builds_enabled":         "builds.enabled",
		"builds_schedule":        "builds.schedule",
		"builds_max_events":      "builds.max_events",
		"builds_min_sample_size": "builds.min_sample_size",
		"builds_batch_size":      "builds.batch_size",
		"builds_healer_weapons":  "builds.healer_weapons",

		// Guild sync
		"guildsync_enabled":           "guildsync.enabled",
		"guildsync_schedule":          "guildsync.schedule",
		"guildsync_max_guilds":        "guildsync.max_guilds",
		"guildsync_workers":           "guildsync.workers",
		"guildsync_leaderboard_size":  "guildsync.leaderboard_size",
		"guildsync_battle_scan_limit": "guildsync.battle_scan_limit",

		// Market scanner
		"market_enabled":     "market.enabled",
		"market_max_results": "market.max_results",

		// Database
		"duckdb_path":            "database.path",
		"database_threads":       "database.threads",
		"database_max_memory_mb": "database.max_memory_mb",
		"database_access_mode":   "database.access_mode",

		// NATS publishing
		"nats_enabled":         "nats.enabled",
		"nats_url":             "nats.url",
		"nats_name":            "nats.name",
		"nats_publish_timeout": "nats.publish_timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Observability toggles
		"metrics_enabled":   "metrics.enabled",
		"websocket_enabled": "websocket.enabled",

		// Audit
		"audit_enabled":        "audit.enabled",
		"audit_retention_days": "audit.retention_days",

		// HTTP policies
		"cors_allowed_origins":          "cors.allowed_origins",
		"ratelimit_requests_per_minute": "ratelimit.requests_per_minute",
		"ratelimit_trigger_per_minute":  "ratelimit.trigger_per_minute",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}

// WatchConfigFile registers a callback fired when the config file changes.
// The caller is responsible for mutex protection when swapping config
// during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
