// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package models

import (
	"errors"
	"testing"
	"time"
)

func TestMessageLess(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b Message
		want bool
	}{
		{"earlier first", Message{ID: "b", CreatedAt: base}, Message{ID: "a", CreatedAt: base.Add(time.Second)}, true},
		{"later second", Message{ID: "a", CreatedAt: base.Add(time.Second)}, Message{ID: "b", CreatedAt: base}, false},
		{"tie broken by id", Message{ID: "a", CreatedAt: base}, Message{ID: "b", CreatedAt: base}, true},
		{"equal is not less", Message{ID: "a", CreatedAt: base}, Message{ID: "a", CreatedAt: base}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Less(&tt.b); got != tt.want {
				t.Errorf("Less() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageIsUnreadFor(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := Message{SenderID: "agency-1"}

	if !m.IsUnreadFor("student-1") {
		t.Error("counterpart message without read_at should be unread")
	}
	if m.IsUnreadFor("agency-1") {
		t.Error("own message must never count as unread")
	}
	m.ReadAt = &now
	if m.IsUnreadFor("student-1") {
		t.Error("read message should not be unread")
	}
}

func TestDraftRecipientID(t *testing.T) {
	t.Parallel()

	d := MessageDraft{StudentID: "s", AgencyID: "a", SenderRole: RoleStudent}
	if got := d.RecipientID(); got != "a" {
		t.Errorf("student sender recipient = %q, want a", got)
	}
	d.SenderRole = RoleAgency
	if got := d.RecipientID(); got != "s" {
		t.Errorf("agency sender recipient = %q, want s", got)
	}
}

func TestViewerValid(t *testing.T) {
	t.Parallel()

	if !(Viewer{ID: "x", Role: RoleAgency}).Valid() {
		t.Error("agency viewer should be valid")
	}
	if (Viewer{ID: "x", Role: "admin"}).Valid() {
		t.Error("unknown role should be invalid")
	}
	if (Viewer{Role: RoleStudent}).Valid() {
		t.Error("missing id should be invalid")
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("body", "must not be empty"), ErrValidation},
		{"authorization", NewAuthorizationError("v1", "not the sender"), ErrAuthorization},
		{"transport", &TransportError{Op: "subscribe", Err: cause}, ErrTransport},
		{"dispatch", &NotificationDispatchError{JobName: "notify", MessageID: "m1", Err: cause}, ErrNotificationDispatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
			if errors.Is(tt.err, ErrNotFound) {
				t.Error("typed error should not match ErrNotFound")
			}
		})
	}

	if !errors.Is(&TransportError{Op: "query", Err: cause}, cause) {
		t.Error("transport error should unwrap to its cause")
	}
}
