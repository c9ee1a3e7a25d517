// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomlink/internal/models"
)

const maxDraftBytes = 64 << 10

// Conversations lists the viewer's conversations, newest first.
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := viewer(w, r)
	if !ok {
		return
	}

	convs, err := h.messaging.Conversations(r.Context(), v)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	respondSuccess(w, http.StatusOK, convs, start)
}

// UnreadCount returns the viewer's unread badge count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := viewer(w, r)
	if !ok {
		return
	}

	n, err := h.messaging.UnreadCount(r.Context(), v)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, models.UnreadSummary{Unread: n}, start)
}

// History returns one conversation's messages in order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := viewer(w, r)
	if !ok {
		return
	}

	msgs, err := h.messaging.History(r.Context(), v, keyParam(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondSuccess(w, http.StatusOK, msgs, start)
}

// MarkRead marks every message addressed to the viewer in the conversation
// as read and returns the rows that changed.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := viewer(w, r)
	if !ok {
		return
	}

	updated, err := h.messaging.MarkConversationRead(r.Context(), v, keyParam(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{"marked": len(updated)}, start)
}

// SendMessage stores a message draft. Sender fields default to the
// authenticated viewer.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	v, ok := viewer(w, r)
	if !ok {
		return
	}

	var draft models.MessageDraft
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes)).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body must be a JSON message draft", nil)
		return
	}
	if draft.SenderID == "" {
		draft.SenderID = v.ID
	}
	if draft.SenderRole == "" {
		draft.SenderRole = v.Role
	}

	stored, err := h.messaging.Send(r.Context(), v, &draft)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, stored, start)
}
