// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package config

import "time"

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	EventBus EventBusConfig `koanf:"eventbus"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Notify   NotifyConfig   `koanf:"notify"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = NumCPU
}

// Event bus modes.
const (
	EventBusMemory = "memory"
	EventBusNATS   = "nats"
)

// EventBusConfig selects and tunes the row-change transport.
//
// The nats mode requires a binary built with -tags nats.
type EventBusConfig struct {
	Mode string `koanf:"mode"`

	// NATS settings
	URL            string        `koanf:"url"`
	EmbeddedServer bool          `koanf:"embedded_server"`
	StoreDir       string        `koanf:"store_dir"`
	StreamName     string        `koanf:"stream_name"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`

	// OutputBuffer is the per-subscriber buffer of the in-memory transport.
	OutputBuffer int64 `koanf:"output_buffer"`

	// Publish circuit breaker
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	// Redelivery dedup window
	DedupCapacity int           `koanf:"dedup_capacity"`
	DedupTTL      time.Duration `koanf:"dedup_ttl"`
}

// RealtimeConfig tunes open conversation views.
type RealtimeConfig struct {
	// ReadDebounce is the delay before an open, focused thread marks
	// counterpart messages read.
	ReadDebounce time.Duration `koanf:"read_debounce"`

	// MaxViewsPerConnection bounds concurrently open threads per websocket.
	MaxViewsPerConnection int `koanf:"max_views_per_connection"`
}

// Notification modes.
const (
	NotifyNone    = "none"
	NotifyWebhook = "webhook"
	NotifyBus     = "bus"
)

// NotifyConfig configures the post-send notification job.
type NotifyConfig struct {
	Mode    string `koanf:"mode"`
	JobName string `koanf:"job_name"`

	WebhookURL     string            `koanf:"webhook_url"`
	WebhookTimeout time.Duration     `koanf:"webhook_timeout"`
	WebhookHeaders map[string]string `koanf:"webhook_headers"`

	RateLimitPerSecond float64 `koanf:"rate_limit_per_second"`
	RateLimitBurst     int     `koanf:"rate_limit_burst"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	QueueSize     int           `koanf:"queue_size"`
	DedupCapacity int           `koanf:"dedup_capacity"`
	DedupTTL      time.Duration `koanf:"dedup_ttl"`

	// Outbox journals dispatches in BadgerDB and replays failed ones.
	OutboxEnabled       bool          `koanf:"outbox_enabled"`
	OutboxPath          string        `koanf:"outbox_path"`
	OutboxSyncWrites    bool          `koanf:"outbox_sync_writes"`
	OutboxRetryInterval time.Duration `koanf:"outbox_retry_interval"`
	OutboxRetryBackoff  time.Duration `koanf:"outbox_retry_backoff"`
	OutboxMaxAttempts   int           `koanf:"outbox_max_attempts"`
	OutboxEntryTTL      time.Duration `koanf:"outbox_entry_ttl"`
}

// AuditConfig configures the security audit trail.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BufferSize      int           `koanf:"buffer_size"`
	RetentionDays   int           `koanf:"retention_days"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// SecurityConfig holds authentication and request limiting settings.
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	JWTIssuer         string        `koanf:"jwt_issuer"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
