// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
)

// MessageLister is the store query the Aggregator needs.
type MessageLister interface {
	ListForViewer(ctx context.Context, viewer models.Viewer) ([]models.Message, error)
}

// Aggregator recomputes a viewer's conversations from the store on every call.
type Aggregator struct {
	store MessageLister
}

// NewAggregator creates an Aggregator over store.
func NewAggregator(store MessageLister) *Aggregator {
	return &Aggregator{store: store}
}

// List returns the viewer's conversations, newest activity first.
func (a *Aggregator) List(ctx context.Context, viewer models.Viewer) ([]models.Conversation, error) {
	if !viewer.Valid() {
		return nil, models.NewAuthorizationError(viewer.ID, "viewer has no valid role")
	}

	start := time.Now()
	msgs, err := a.store.ListForViewer(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("list messages for viewer: %w", err)
	}

	convs := Aggregate(viewer, msgs)
	SortByRecent(convs)
	metrics.RecordAggregation(time.Since(start))
	return convs, nil
}

// TotalUnread is the badge count: unread counterpart messages across all of
// the viewer's conversations.
func (a *Aggregator) TotalUnread(ctx context.Context, viewer models.Viewer) (int, error) {
	convs, err := a.List(ctx, viewer)
	if err != nil {
		return 0, err
	}
	return TotalUnread(convs), nil
}
