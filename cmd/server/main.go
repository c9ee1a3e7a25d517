// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package main runs the Roomlink conversation service.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging
//  3. DuckDB message store
//  4. Event bus (in-memory, or NATS JetStream when built with -tags nats)
//  5. Notification dispatcher (none, webhook or bus invoker), with the
//     optional BadgerDB outbox and its retry loop
//  6. Messaging service and websocket hub
//  7. Audit trail, HTTP router and server
//  8. Supervisor tree, until SIGINT or SIGTERM
//
// Example:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export CORS_ORIGINS=https://roomlink.example
//	export NOTIFY_MODE=webhook
//	export NOTIFY_WEBHOOK_URL=https://jobs.internal/notify
//	./roomlink
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tomtom215/roomlink/internal/api"
	"github.com/tomtom215/roomlink/internal/audit"
	"github.com/tomtom215/roomlink/internal/auth"
	"github.com/tomtom215/roomlink/internal/authz"
	"github.com/tomtom215/roomlink/internal/config"
	"github.com/tomtom215/roomlink/internal/database"
	"github.com/tomtom215/roomlink/internal/eventbus"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/messaging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/notify"
	"github.com/tomtom215/roomlink/internal/supervisor"
	"github.com/tomtom215/roomlink/internal/supervisor/services"
	"github.com/tomtom215/roomlink/internal/wal"
	ws "github.com/tomtom215/roomlink/internal/websocket"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Roomlink exited with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("eventbus_mode", cfg.EventBus.Mode).
		Str("notify_mode", cfg.Notify.Mode).
		Msg("Starting Roomlink")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	bus, err := eventbus.New(&cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	notifyCfg := notify.Config{
		JobName:       cfg.Notify.JobName,
		QueueSize:     cfg.Notify.QueueSize,
		Timeout:       cfg.Notify.WebhookTimeout,
		DedupCapacity: cfg.Notify.DedupCapacity,
		DedupTTL:      cfg.Notify.DedupTTL,
	}

	var outbox *wal.BadgerWAL
	if cfg.Notify.OutboxEnabled && cfg.Notify.Mode != config.NotifyNone {
		outbox, err = wal.Open(wal.Config{
			Path:          cfg.Notify.OutboxPath,
			SyncWrites:    cfg.Notify.OutboxSyncWrites,
			RetryInterval: cfg.Notify.OutboxRetryInterval,
			RetryBackoff:  cfg.Notify.OutboxRetryBackoff,
			MaxAttempts:   cfg.Notify.OutboxMaxAttempts,
			EntryTTL:      cfg.Notify.OutboxEntryTTL,
		})
		if err != nil {
			return fmt.Errorf("open notification outbox: %w", err)
		}
		defer func() {
			if err := outbox.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing notification outbox")
			}
		}()
		notifyCfg.Journal = outbox
	}

	dispatcher := notify.NewDispatcher(notifyCfg, newInvoker(&cfg.Notify, bus))

	svc := messaging.NewService(db, bus, dispatcher)

	hub := ws.NewHub(ws.HubConfig{
		Messenger:    svc,
		Transport:    bus,
		ReadDebounce: cfg.Realtime.ReadDebounce,
		MaxViews:     cfg.Realtime.MaxViewsPerConnection,
	})

	auditor, err := newAuditor(cfg, db)
	if err != nil {
		return err
	}

	router, err := newRouter(cfg, svc, hub, db, bus, auditor)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}
	tree.AddDeliveryService(bus)
	tree.AddDeliveryService(dispatcher)
	if outbox != nil {
		tree.AddDeliveryService(wal.NewRetryLoop(outbox, dispatcher.Replay, cfg.Notify.WebhookTimeout))
	}
	tree.AddRealtimeService(hub)
	tree.AddAPIService(auditor)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, u := range unstopped {
			logging.Warn().Str("service", u.Name).Msg("Service failed to stop within timeout")
		}
	}
	return nil
}

// newInvoker selects how notification jobs leave the process.
func newInvoker(cfg *config.NotifyConfig, bus *eventbus.Bus) notify.Invoker {
	switch cfg.Mode {
	case config.NotifyWebhook:
		return notify.NewWebhookInvoker(notify.WebhookConfig{
			URL:                cfg.WebhookURL,
			Headers:            cfg.WebhookHeaders,
			Timeout:            cfg.WebhookTimeout,
			RateLimitPerSecond: cfg.RateLimitPerSecond,
			RateLimitBurst:     cfg.RateLimitBurst,
			BreakerFailures:    cfg.BreakerFailures,
			BreakerTimeout:     cfg.BreakerTimeout,
		})
	case config.NotifyBus:
		return notify.NewBusInvoker(bus)
	default:
		logging.Info().Msg("Notifications disabled (notify.mode=none)")
		return notify.NopInvoker{}
	}
}

// newAuditor stores audit events next to the messages. A disabled trail
// still gets a Logger so the middleware wiring is unconditional.
func newAuditor(cfg *config.Config, db *database.DB) (*audit.Logger, error) {
	auditCfg := audit.Config{
		Enabled:         cfg.Audit.Enabled,
		BufferSize:      cfg.Audit.BufferSize,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
		LogToStdout:     cfg.Audit.LogToStdout,
	}
	if !cfg.Audit.Enabled {
		return audit.NewLogger(nil, auditCfg), nil
	}

	store := audit.NewDuckDBStore(db.Conn())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.CreateTable(ctx); err != nil {
		return nil, fmt.Errorf("initialize audit store: %w", err)
	}
	return audit.NewLogger(store, auditCfg), nil
}

func newRouter(cfg *config.Config, svc *messaging.Service, hub *ws.Hub, db *database.DB, bus *eventbus.Bus, auditor *audit.Logger) (http.Handler, error) {
	tokens, err := auth.NewTokenValidator(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("initialize token validator: %w", err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, fmt.Errorf("initialize authorization: %w", err)
	}

	handler := api.NewHandler(svc, hub, cfg)
	handler.AddReadinessCheck("database", db.Ping)
	handler.AddReadinessCheck("eventbus", func(context.Context) error {
		if !bus.Healthy() {
			return errors.New("event bus disconnected")
		}
		return nil
	})

	router := api.NewRouter(
		handler,
		auth.NewMiddleware(tokens).WithAuditor(auditor),
		authz.NewMiddleware(enforcer).WithAuditor(auditor),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)),
	)
	return router.Setup(), nil
}
