// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package realtime keeps one open conversation view in sync with row
// changes pushed by a Transport.
//
// A Thread subscribes with a coarse per-listing Filter and does the
// precise work itself: it drops events of other conversations, drops
// events it already holds, keeps messages in (created_at, id) order and
// resynchronizes from the store after the transport reconnects.
package realtime

import (
	"context"

	"github.com/tomtom215/roomlink/internal/models"
)

// EventKind distinguishes row inserts from row updates.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
)

// Event is one row change. Message is the full row after the change.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Message models.Message `json:"message"`
}

// Status is the connectivity of a subscription.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusReconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Filter scopes a subscription to one of two feeds. ListingID selects
// every change of a listing; RecipientID selects inserts addressed to a
// viewer, whatever the listing. Exactly one is set. Transports may deliver
// more than the filter asks for; receivers filter again.
type Filter struct {
	ListingID   string
	RecipientID string
}

// Handler receives subscription callbacks. Either func may be nil.
// Callbacks for one subscription may run concurrently.
type Handler struct {
	OnEvent  func(Event)
	OnStatus func(Status)
}

// Subscription is a live registration with a Transport.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
}

// Transport pushes row changes to subscribers.
type Transport interface {
	Subscribe(ctx context.Context, filter Filter, handler Handler) (Subscription, error)
}

// HistoryLoader reads a conversation from the store.
type HistoryLoader interface {
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
}
