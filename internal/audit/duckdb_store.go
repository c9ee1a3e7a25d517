// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/roomlink/internal/database/query"
	"github.com/tomtom215/roomlink/internal/logging"
)

// DuckDBStore writes events to the audit_events table.
type DuckDBStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewDuckDBStore wraps an open DuckDB connection.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

const eventColumns = `id, timestamp, type, severity, outcome, actor_id, actor_role,
	source_ip, user_agent, method, path, resource, action, reason, request_id`

// CreateTable creates the table and its indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id VARCHAR PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			type VARCHAR NOT NULL,
			severity VARCHAR NOT NULL,
			outcome VARCHAR NOT NULL,
			actor_id VARCHAR NOT NULL DEFAULT '',
			actor_role VARCHAR NOT NULL DEFAULT '',
			source_ip VARCHAR NOT NULL DEFAULT '',
			user_agent VARCHAR NOT NULL DEFAULT '',
			method VARCHAR NOT NULL DEFAULT '',
			path VARCHAR NOT NULL DEFAULT '',
			resource VARCHAR NOT NULL DEFAULT '',
			action VARCHAR NOT NULL DEFAULT '',
			reason VARCHAR NOT NULL DEFAULT '',
			request_id VARCHAR NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_actor_id ON audit_events(actor_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}
	logging.Info().Msg("Audit events table created/verified")
	return nil
}

// Save inserts event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp, string(event.Type), string(event.Severity), string(event.Outcome),
		event.ActorID, event.ActorRole, event.SourceIP, event.UserAgent,
		event.Method, event.Path, event.Resource, event.Action, event.Reason, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	types := make([]string, len(filter.Types))
	for i, t := range filter.Types {
		types[i] = string(t)
	}

	wb := query.NewWhereBuilder().
		AddIn("type", types).
		AddEquals("actor_id", filter.ActorID).
		AddSince("timestamp", filter.Since)
	where, args := wb.BuildWithPrefix()

	q := `SELECT ` + eventColumns + ` FROM audit_events ` + where + ` ORDER BY timestamp DESC, id`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Failed to close audit rows")
		}
	}()

	var events []Event
	for rows.Next() {
		var e Event
		var typ, sev, outcome string
		if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &sev, &outcome, &e.ActorID, &e.ActorRole,
			&e.SourceIP, &e.UserAgent, &e.Method, &e.Path, &e.Resource, &e.Action, &e.Reason, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = EventType(typ)
		e.Severity = Severity(sev)
		e.Outcome = Outcome(outcome)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Delete removes events older than olderThan.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit events: %w", err)
	}
	return n, nil
}
