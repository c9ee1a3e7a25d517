// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

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

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/roomlink/config.yaml",
	"/etc/roomlink/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/roomlink.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		EventBus: EventBusConfig{
			Mode:            EventBusMemory,
			URL:             "nats://127.0.0.1:4222",
			EmbeddedServer:  true,
			StoreDir:        "/data/nats/jetstream",
			StreamName:      "ROOMLINK",
			MaxReconnects:   -1,
			ReconnectWait:   2 * time.Second,
			OutputBuffer:    256,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
			DedupCapacity:   10000,
			DedupTTL:        5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			ReadDebounce:          750 * time.Millisecond,
			MaxViewsPerConnection: 8,
		},
		Notify: NotifyConfig{
			Mode:               NotifyNone,
			JobName:            "new-message-notification",
			WebhookTimeout:     10 * time.Second,
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
			BreakerFailures:    5,
			BreakerTimeout:     60 * time.Second,
			QueueSize:          1024,
			DedupCapacity:      10000,
			DedupTTL:           10 * time.Minute,

			OutboxPath:          "/data/outbox",
			OutboxSyncWrites:    true,
			OutboxRetryInterval: 30 * time.Second,
			OutboxRetryBackoff:  5 * time.Second,
			OutboxMaxAttempts:   20,
			OutboxEntryTTL:      24 * time.Hour,
		},
		Security: SecurityConfig{
			JWTIssuer:       "",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:         true,
			BufferSize:      1000,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads defaults, then the config file, then the environment,
// and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
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

// Load is an alias for LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

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

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// mapConfigPaths are parsed from "k1=v1,k2=v2" env values.
var mapConfigPaths = []string{
	"notify.webhook_headers",
}

func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		m := make(map[string]string)
		for _, pair := range strings.Split(strVal, ",") {
			key, value, found := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
				continue
			}
			m[key] = strings.TrimSpace(value)
		}
		// k.Set merges maps; drop the string value first.
		k.Delete(path)
		if err := k.Set(path, m); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf paths. Unknown
// variables are skipped.
//
//   - DUCKDB_PATH -> database.path
//   - NATS_URL -> eventbus.url
//   - READ_DEBOUNCE -> realtime.read_debounce
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

var envMappings = map[string]string{
	// Server
	"http_host":        "server.host",
	"http_port":        "server.port",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Event bus
	"eventbus_mode":             "eventbus.mode",
	"nats_url":                  "eventbus.url",
	"nats_embedded":             "eventbus.embedded_server",
	"nats_store_dir":            "eventbus.store_dir",
	"nats_stream_name":          "eventbus.stream_name",
	"nats_max_reconnects":       "eventbus.max_reconnects",
	"nats_reconnect_wait":       "eventbus.reconnect_wait",
	"eventbus_output_buffer":    "eventbus.output_buffer",
	"eventbus_breaker_failures": "eventbus.breaker_failures",
	"eventbus_breaker_timeout":  "eventbus.breaker_timeout",
	"eventbus_dedup_capacity":   "eventbus.dedup_capacity",
	"eventbus_dedup_ttl":        "eventbus.dedup_ttl",

	// Realtime
	"read_debounce": "realtime.read_debounce",
	"ws_max_views":  "realtime.max_views_per_connection",

	// Notifications
	"notify_mode":                  "notify.mode",
	"notify_job_name":              "notify.job_name",
	"notify_webhook_url":           "notify.webhook_url",
	"notify_webhook_timeout":       "notify.webhook_timeout",
	"notify_webhook_headers":       "notify.webhook_headers",
	"notify_rate_limit_per_second": "notify.rate_limit_per_second",
	"notify_rate_limit_burst":      "notify.rate_limit_burst",
	"notify_breaker_failures":      "notify.breaker_failures",
	"notify_breaker_timeout":       "notify.breaker_timeout",
	"notify_queue_size":            "notify.queue_size",
	"notify_dedup_capacity":        "notify.dedup_capacity",
	"notify_dedup_ttl":             "notify.dedup_ttl",
	"notify_outbox_enabled":        "notify.outbox_enabled",
	"notify_outbox_path":           "notify.outbox_path",
	"notify_outbox_sync_writes":    "notify.outbox_sync_writes",
	"notify_outbox_retry_interval": "notify.outbox_retry_interval",
	"notify_outbox_retry_backoff":  "notify.outbox_retry_backoff",
	"notify_outbox_max_attempts":   "notify.outbox_max_attempts",
	"notify_outbox_entry_ttl":      "notify.outbox_entry_ttl",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"jwt_issuer":          "security.jwt_issuer",
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Audit
	"audit_enabled":          "audit.enabled",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_retention_days":   "audit.retention_days",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_log_to_stdout":    "audit.log_to_stdout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}
