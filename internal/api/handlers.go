// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/roomlink/internal/auth"
	"github.com/tomtom215/roomlink/internal/config"
	"github.com/tomtom215/roomlink/internal/models"
	ws "github.com/tomtom215/roomlink/internal/websocket"
)

// Messaging is the slice of messaging.Service the handlers use.
type Messaging interface {
	Conversations(ctx context.Context, viewer models.Viewer) ([]models.Conversation, error)
	UnreadCount(ctx context.Context, viewer models.Viewer) (int, error)
	History(ctx context.Context, viewer models.Viewer, key string) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, viewer models.Viewer, key string) ([]models.Message, error)
	Send(ctx context.Context, viewer models.Viewer, draft *models.MessageDraft) (*models.Message, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	messaging Messaging
	hub       *ws.Hub
	config    *config.Config
	checks    map[string]ReadinessCheck
	startTime time.Time
}

// NewHandler creates the handler set. hub may be nil, in which case the
// websocket endpoint reports 503.
func NewHandler(messaging Messaging, hub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		messaging: messaging,
		hub:       hub,
		config:    cfg,
		checks:    make(map[string]ReadinessCheck),
		startTime: time.Now(),
	}
}

// AddReadinessCheck registers a named dependency for /health/ready. Call
// during startup only.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// viewer returns the authenticated viewer or writes a 401.
func viewer(w http.ResponseWriter, r *http.Request) (models.Viewer, bool) {
	v, ok := auth.ViewerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "Authentication required", nil)
	}
	return v, ok
}
