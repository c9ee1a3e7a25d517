// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
)

// Config configures a Logger.
type Config struct {
	Enabled bool

	// BufferSize bounds events waiting to be written.
	BufferSize int

	// RetentionDays deletes older events. Zero keeps everything.
	RetentionDays int

	// CleanupInterval is the period of retention cleanup.
	CleanupInterval time.Duration

	// LogToStdout also writes each event through the application logger.
	LogToStdout bool
}

// Logger buffers events and writes them to a Store.
type Logger struct {
	config Config
	store  Store
	events chan *Event

	mu      sync.Mutex
	running bool
}

// NewLogger creates a logger. Call Serve to start writing.
func NewLogger(store Store, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	return &Logger{
		config: cfg,
		store:  store,
		events: make(chan *Event, cfg.BufferSize),
	}
}

// Log queues event. It fills in ID and Timestamp when missing.
func (l *Logger) Log(event *Event) {
	if l == nil || !l.config.Enabled || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.events <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Audit event buffer full, dropping event")
	}
}

// Serve writes queued events and runs retention cleanup until ctx is
// canceled, then drains what is left in the buffer.
func (l *Logger) Serve(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("audit logger already running")
	}
	l.running = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case event := <-l.events:
					l.write(event)
				default:
					return ctx.Err()
				}
			}
		case event := <-l.events:
			l.write(event)
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// String names the service for the supervisor.
func (l *Logger) String() string {
	return "audit-logger"
}

func (l *Logger) write(event *Event) {
	if l.config.LogToStdout {
		if data, err := json.Marshal(event); err == nil {
			logging.Info().RawJSON("event", data).Msg("Audit event")
		}
	}
	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
	}
}

func (l *Logger) cleanup() {
	if l.store == nil || l.config.RetentionDays <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -l.config.RetentionDays)
	n, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit retention cleanup failed")
		return
	}
	if n > 0 {
		logging.Info().Int64("deleted", n).Int("retention_days", l.config.RetentionDays).Msg("Audit retention cleanup")
	}
}

// LogAuthFailure records a request rejected for missing or invalid
// credentials.
func (l *Logger) LogAuthFailure(r *http.Request, reason string) {
	event := eventFromRequest(r, EventTypeAuthFailure)
	event.Severity = SeverityWarning
	event.Reason = reason
	l.Log(event)
}

// LogAuthzDenied records an authenticated request denied by policy.
func (l *Logger) LogAuthzDenied(r *http.Request, viewer models.Viewer, resource, action string) {
	event := eventFromRequest(r, EventTypeAuthzDenied)
	event.Severity = SeverityWarning
	event.ActorID = viewer.ID
	event.ActorRole = viewer.Role
	event.Resource = resource
	event.Action = action
	l.Log(event)
}

func eventFromRequest(r *http.Request, typ EventType) *Event {
	return &Event{
		Type:      typ,
		Outcome:   OutcomeFailure,
		SourceIP:  sourceIP(r.RemoteAddr),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// sourceIP strips the port. RemoteAddr has already been rewritten from
// X-Real-IP or X-Forwarded-For by the RealIP middleware.
func sourceIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
