// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/models"
)

var (
	studentS = models.Viewer{ID: "S", Role: models.RoleStudent}
	studentT = models.Viewer{ID: "T", Role: models.RoleStudent}
	agencyA  = models.Viewer{ID: "A", Role: models.RoleAgency}
	agencyB  = models.Viewer{ID: "B", Role: models.RoleAgency}
)

// draftFrom builds a draft on listing for the given student and agency,
// authored by sender.
func draftFrom(sender models.Viewer, listingID, studentID, agencyID, body string) *models.MessageDraft {
	return &models.MessageDraft{
		ListingID:    listingID,
		StudentID:    studentID,
		AgencyID:     agencyID,
		SenderID:     sender.ID,
		SenderRole:   sender.Role,
		Body:         body,
		ListingTitle: "Room " + listingID,
		ListingPrice: 450,
	}
}

func mustInsert(t *testing.T, db *DB, sender models.Viewer, draft *models.MessageDraft) *models.Message {
	t.Helper()
	m, err := db.InsertMessage(context.Background(), sender, draft)
	if err != nil {
		t.Fatalf("InsertMessage(%s: %q) error = %v", sender.ID, draft.Body, err)
	}
	return m
}

func TestInsertMessage_AssignsServerFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "Is the room available?"))

	if m.ID == "" {
		t.Error("ID not assigned")
	}
	if want := conversation.Resolve("L1", "S"); m.ConversationID != want {
		t.Errorf("ConversationID = %q, want %q", m.ConversationID, want)
	}
	if m.RecipientID != "A" {
		t.Errorf("RecipientID = %q, want A", m.RecipientID)
	}
	if m.CreatedAt.IsZero() || m.ReadAt != nil || m.RepliedAt != nil {
		t.Errorf("unexpected timestamps: created=%v read=%v replied=%v", m.CreatedAt, m.ReadAt, m.RepliedAt)
	}

	got, err := db.GetMessage(ctx, m.ID)
	checkNoError(t, err)
	if got.Body != m.Body || !got.CreatedAt.Equal(m.CreatedAt) || got.ListingPrice != 450 {
		t.Errorf("GetMessage() = %+v, want %+v", got, m)
	}

	_, err = db.GetMessage(ctx, "missing")
	checkErrorIs(t, err, models.ErrNotFound)
}

func TestInsertMessage_Rejections(t *testing.T) {
	db := setupTestDB(t)

	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "hello"))

	tests := []struct {
		name    string
		viewer  models.Viewer
		draft   *models.MessageDraft
		wantErr error
	}{
		{
			name:    "empty body",
			viewer:  studentS,
			draft:   draftFrom(studentS, "L1", "S", "A", ""),
			wantErr: models.ErrValidation,
		},
		{
			name:    "whitespace body",
			viewer:  studentS,
			draft:   draftFrom(studentS, "L1", "S", "A", " \n\t "),
			wantErr: models.ErrValidation,
		},
		{
			name:    "missing listing",
			viewer:  studentS,
			draft:   draftFrom(studentS, "", "S", "A", "hi"),
			wantErr: models.ErrValidation,
		},
		{
			name:   "claimed key mismatch",
			viewer: studentS,
			draft: func() *models.MessageDraft {
				d := draftFrom(studentS, "L1", "S", "A", "hi")
				d.ConversationID = conversation.Resolve("L2", "S")
				return d
			}(),
			wantErr: models.ErrValidation,
		},
		{
			name:    "viewer is not sender",
			viewer:  studentT,
			draft:   draftFrom(studentS, "L1", "S", "A", "hi"),
			wantErr: models.ErrAuthorization,
		},
		{
			name:    "student posing as agency",
			viewer:  models.Viewer{ID: "S", Role: models.RoleAgency},
			draft:   draftFrom(models.Viewer{ID: "S", Role: models.RoleAgency}, "L1", "S", "A", "hi"),
			wantErr: models.ErrAuthorization,
		},
		{
			name:    "student writing into another student's conversation",
			viewer:  studentT,
			draft:   draftFrom(studentT, "L1", "S", "A", "hi"),
			wantErr: models.ErrAuthorization,
		},
		{
			name:    "other agency on existing conversation",
			viewer:  agencyB,
			draft:   draftFrom(agencyB, "L1", "S", "B", "hi"),
			wantErr: models.ErrAuthorization,
		},
		{
			name:    "anonymous viewer",
			viewer:  models.Viewer{},
			draft:   draftFrom(studentS, "L1", "S", "A", "hi"),
			wantErr: models.ErrAuthorization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.InsertMessage(context.Background(), tt.viewer, tt.draft)
			checkErrorIs(t, err, tt.wantErr)
		})
	}

	msgs, err := db.ListByConversation(context.Background(), conversation.Resolve("L1", "S"))
	checkNoError(t, err)
	if len(msgs) != 1 {
		t.Errorf("rejected drafts were stored: %d rows", len(msgs))
	}
}

func TestInsertMessage_ClientNonceIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	d := draftFrom(studentS, "L1", "S", "A", "first")
	d.ClientNonce = "nonce-1"
	first := mustInsert(t, db, studentS, d)
	again := mustInsert(t, db, studentS, d)

	if again.ID != first.ID {
		t.Errorf("retry produced a new row: %s != %s", again.ID, first.ID)
	}

	msgs, err := db.ListByConversation(context.Background(), first.ConversationID)
	checkNoError(t, err)
	if len(msgs) != 1 {
		t.Errorf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestListByConversation_Ordered(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "one"))
	mustInsert(t, db, agencyA, draftFrom(agencyA, "L1", "S", "A", "two"))
	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "three"))
	mustInsert(t, db, studentT, draftFrom(studentT, "L1", "T", "A", "other thread"))

	msgs, err := db.ListByConversation(ctx, conversation.Resolve("L1", "S"))
	checkNoError(t, err)

	want := []string{"one", "two", "three"}
	if len(msgs) != len(want) {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), len(want))
	}
	for i, m := range msgs {
		if m.Body != want[i] {
			t.Errorf("msgs[%d].Body = %q, want %q", i, m.Body, want[i])
		}
		if i > 0 && !msgs[i-1].Less(&msgs[i]) {
			t.Errorf("msgs[%d] not after msgs[%d]", i, i-1)
		}
	}
}

func TestListForViewer_RoleScoping(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "S on L1"))
	mustInsert(t, db, studentT, draftFrom(studentT, "L1", "T", "A", "T on L1"))
	mustInsert(t, db, studentS, draftFrom(studentS, "L2", "S", "A", "S on L2"))
	mustInsert(t, db, studentS, draftFrom(studentS, "L3", "S", "B", "S on L3"))

	tests := []struct {
		viewer models.Viewer
		want   int
	}{
		{agencyA, 3},
		{agencyB, 1},
		{studentS, 3},
		{studentT, 1},
	}

	for _, tt := range tests {
		t.Run(tt.viewer.ID, func(t *testing.T) {
			msgs, err := db.ListForViewer(ctx, tt.viewer)
			checkNoError(t, err)
			if len(msgs) != tt.want {
				t.Errorf("ListForViewer(%s) = %d rows, want %d", tt.viewer.ID, len(msgs), tt.want)
			}
			for _, m := range msgs {
				party := m.StudentID
				if tt.viewer.IsAgency() {
					party = m.AgencyID
				}
				if party != tt.viewer.ID {
					t.Errorf("row %s leaked to %s", m.ID, tt.viewer.ID)
				}
			}
		})
	}

	_, err := db.ListForViewer(ctx, models.Viewer{ID: "X"})
	checkErrorIs(t, err, models.ErrAuthorization)
}

func TestMarkRead_ThreeUnreadThenIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	key := conversation.Resolve("L1", "S")

	mustInsert(t, db, agencyA, draftFrom(agencyA, "L1", "S", "A", "own"))
	for _, body := range []string{"a", "b", "c"} {
		mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", body))
	}

	updated, err := db.MarkRead(ctx, key, agencyA.ID, time.Time{})
	checkNoError(t, err)
	if len(updated) != 3 {
		t.Fatalf("first MarkRead updated %d rows, want 3", len(updated))
	}
	for _, m := range updated {
		if m.ReadAt == nil {
			t.Errorf("row %s returned without read_at", m.ID)
		}
		if m.SenderID == agencyA.ID {
			t.Errorf("reader's own message %s was marked read", m.ID)
		}
	}

	again, err := db.MarkRead(ctx, key, agencyA.ID, time.Time{})
	checkNoError(t, err)
	if len(again) != 0 {
		t.Errorf("second MarkRead updated %d rows, want 0", len(again))
	}

	msgs, err := db.ListByConversation(ctx, key)
	checkNoError(t, err)
	for _, m := range msgs {
		if m.IsUnreadFor(agencyA.ID) {
			t.Errorf("message %s still unread for agency", m.ID)
		}
		if m.SenderID == agencyA.ID && m.ReadAt != nil {
			t.Errorf("agency's own message %s has read_at", m.ID)
		}
	}
}

func TestMarkRead_RespectsCutoff(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	early := mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "early"))
	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "late"))

	updated, err := db.MarkRead(ctx, early.ConversationID, agencyA.ID, early.CreatedAt)
	checkNoError(t, err)
	if len(updated) != 1 || updated[0].ID != early.ID {
		t.Fatalf("MarkRead(before=early) = %+v, want only %s", updated, early.ID)
	}

	_, err = db.MarkRead(ctx, "", agencyA.ID, time.Time{})
	checkErrorIs(t, err, models.ErrValidation)
}

func TestMarkFirstReplied_OncePerConversation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	key := conversation.Resolve("L1", "S")

	first := mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "first"))
	mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "second"))
	other := mustInsert(t, db, studentS, draftFrom(studentS, "L2", "S", "A", "other listing"))

	marked, err := db.MarkFirstReplied(ctx, key, agencyA.ID)
	checkNoError(t, err)
	if marked == nil || marked.ID != first.ID || marked.RepliedAt == nil {
		t.Fatalf("MarkFirstReplied() = %+v, want %s with replied_at", marked, first.ID)
	}

	again, err := db.MarkFirstReplied(ctx, key, agencyA.ID)
	checkNoError(t, err)
	if again != nil {
		t.Errorf("second MarkFirstReplied() = %+v, want nil", again)
	}

	untouched, err := db.GetMessage(ctx, other.ID)
	checkNoError(t, err)
	if untouched.RepliedAt != nil {
		t.Error("reply marker leaked into another conversation")
	}

	wrongAgency, err := db.MarkFirstReplied(ctx, other.ConversationID, agencyB.ID)
	checkNoError(t, err)
	if wrongAgency != nil {
		t.Error("agency that does not own the conversation set a reply marker")
	}
}

func TestConversationParties(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := mustInsert(t, db, studentS, draftFrom(studentS, "L1", "S", "A", "hi"))

	studentID, agencyID, err := db.ConversationParties(ctx, m.ConversationID)
	checkNoError(t, err)
	if studentID != "S" || agencyID != "A" {
		t.Errorf("ConversationParties() = (%q, %q), want (S, A)", studentID, agencyID)
	}

	_, _, err = db.ConversationParties(ctx, conversation.Resolve("L9", "S"))
	checkErrorIs(t, err, models.ErrNotFound)
}
