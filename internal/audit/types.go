// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package audit

import "time"

// EventType categorizes an event.
type EventType string

const (
	EventTypeAuthFailure EventType = "auth.failure"
	EventTypeAuthzDenied EventType = "authz.denied"
)

// Severity of an event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Outcome of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record. ActorID and ActorRole are empty when the
// caller never authenticated.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`

	ActorID   string `json:"actor_id,omitempty"`
	ActorRole string `json:"actor_role,omitempty"`

	SourceIP  string `json:"source_ip"`
	UserAgent string `json:"user_agent,omitempty"`

	Method    string `json:"method"`
	Path      string `json:"path"`
	Resource  string `json:"resource,omitempty"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// QueryFilter selects events. Zero fields match everything.
type QueryFilter struct {
	Types   []EventType
	ActorID string
	Since   *time.Time
	Limit   int
}
