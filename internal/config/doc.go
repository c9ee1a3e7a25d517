// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

/*
Package config loads Roomlink configuration.

Sources are layered with koanf, later layers overriding earlier ones:

 1. Defaults from defaultConfig()
 2. An optional YAML file: $CONFIG_PATH, then config.yaml / config.yml,
    then /etc/roomlink/config.yaml
 3. Environment variables listed in envTransformFunc

Sections:

  - server: HTTP listener (HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT, ENVIRONMENT)
  - database: DuckDB file and tuning (DUCKDB_PATH, DUCKDB_MAX_MEMORY, DUCKDB_THREADS)
  - eventbus: row-change transport, memory or nats (EVENTBUS_MODE, NATS_URL, NATS_EMBEDDED, NATS_STORE_DIR)
  - realtime: open thread behaviour (READ_DEBOUNCE, WS_MAX_VIEWS)
  - notify: notification job dispatch (NOTIFY_MODE, NOTIFY_JOB_NAME, NOTIFY_WEBHOOK_URL,
    NOTIFY_OUTBOX_ENABLED, NOTIFY_OUTBOX_PATH)
  - security: JWT, CORS and rate limits (JWT_SECRET, CORS_ORIGINS, RATE_LIMIT_REQUESTS)
  - audit: security audit trail in DuckDB (AUDIT_ENABLED, AUDIT_RETENTION_DAYS)
  - logging: zerolog level and format (LOG_LEVEL, LOG_FORMAT, LOG_CALLER)

LoadWithKoanf validates the result before returning it.
*/
package config
