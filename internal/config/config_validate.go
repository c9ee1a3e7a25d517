// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateDatabase,
		c.validateEventBus,
		c.validateRealtime,
		c.validateNotify,
		c.validateSecurity,
		c.validateAudit,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must be 0 (auto) or positive")
	}
	return nil
}

func (c *Config) validateEventBus() error {
	switch c.EventBus.Mode {
	case EventBusMemory:
		if c.EventBus.OutputBuffer < 0 {
			return fmt.Errorf("EVENTBUS_OUTPUT_BUFFER must not be negative")
		}
	case EventBusNATS:
		if !c.EventBus.EmbeddedServer && c.EventBus.URL == "" {
			return fmt.Errorf("NATS_URL is required when NATS_EMBEDDED=false")
		}
		if c.EventBus.StreamName == "" {
			return fmt.Errorf("NATS_STREAM_NAME is required in nats mode")
		}
		if c.EventBus.EmbeddedServer && c.EventBus.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required for the embedded server")
		}
	default:
		return fmt.Errorf("EVENTBUS_MODE must be one of: memory, nats")
	}
	if c.EventBus.DedupCapacity <= 0 {
		return fmt.Errorf("EVENTBUS_DEDUP_CAPACITY must be positive")
	}
	return nil
}

func (c *Config) validateRealtime() error {
	if c.Realtime.ReadDebounce <= 0 {
		return fmt.Errorf("READ_DEBOUNCE must be positive")
	}
	if c.Realtime.MaxViewsPerConnection < 1 {
		return fmt.Errorf("WS_MAX_VIEWS must be at least 1")
	}
	return nil
}

func (c *Config) validateNotify() error {
	switch c.Notify.Mode {
	case NotifyNone:
		return nil
	case NotifyWebhook:
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL must be an absolute http(s) URL when NOTIFY_MODE=webhook")
		}
	case NotifyBus:
	default:
		return fmt.Errorf("NOTIFY_MODE must be one of: none, webhook, bus")
	}

	if c.Notify.JobName == "" {
		return fmt.Errorf("NOTIFY_JOB_NAME is required when notifications are enabled")
	}
	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be at least 1")
	}
	if c.Notify.RateLimitPerSecond <= 0 {
		return fmt.Errorf("NOTIFY_RATE_LIMIT_PER_SECOND must be positive")
	}
	if c.Notify.OutboxEnabled {
		if c.Notify.OutboxPath == "" {
			return fmt.Errorf("NOTIFY_OUTBOX_PATH is required when NOTIFY_OUTBOX_ENABLED=true")
		}
		if c.Notify.OutboxRetryInterval < time.Second {
			return fmt.Errorf("NOTIFY_OUTBOX_RETRY_INTERVAL must be at least 1s")
		}
		if c.Notify.OutboxMaxAttempts < 1 {
			return fmt.Errorf("NOTIFY_OUTBOX_MAX_ATTEMPTS must be at least 1")
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS must not contain '*' in production")
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 || c.Security.RateLimitReqs > 100000 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be between 1 and 100000")
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters for security")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative")
	}
	if c.Audit.CleanupInterval < time.Minute {
		return fmt.Errorf("AUDIT_CLEANUP_INTERVAL must be at least 1m")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// placeholderPatterns catch secrets copied from example files.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"PLACEHOLDER",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}
