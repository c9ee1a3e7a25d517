// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package conversation

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/tomtom215/roomlink/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// msg builds a row on listing L owned by agency A.
func msg(id, studentID, senderRole string, at int, read bool) models.Message {
	m := models.Message{
		ID:             id,
		ConversationID: Resolve("L", studentID),
		ListingID:      "L",
		StudentID:      studentID,
		AgencyID:       "A",
		SenderRole:     senderRole,
		Body:           "body " + id,
		CreatedAt:      t0.Add(time.Duration(at) * time.Minute),
	}
	if senderRole == models.RoleAgency {
		m.SenderID, m.RecipientID = "A", studentID
		m.SenderName = "Agency A"
		m.RecipientName = "Student " + studentID
	} else {
		m.SenderID, m.RecipientID = studentID, "A"
		m.SenderName = "Student " + studentID
		m.SenderUniversity = "Uni"
		m.RecipientName = "Agency A"
	}
	if read {
		ts := m.CreatedAt.Add(time.Minute)
		m.ReadAt = &ts
	}
	return m
}

func TestAggregateStudentSeesOnlyOwnThread(t *testing.T) {
	t.Parallel()

	// Student S writes on L (K1); agency A replies to S twice and also
	// writes to student T on the same listing (K2).
	all := []models.Message{
		msg("1", "S", models.RoleStudent, 0, false),
		msg("2", "S", models.RoleAgency, 1, false),
		msg("3", "T", models.RoleAgency, 2, false),
		msg("4", "S", models.RoleAgency, 3, false),
		msg("5", "T", models.RoleAgency, 4, false),
	}

	// Role-scoped query for student S.
	var visible []models.Message
	for _, m := range all {
		if m.StudentID == "S" {
			visible = append(visible, m)
		}
	}

	convs := Aggregate(models.Viewer{ID: "S", Role: models.RoleStudent}, visible)
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	c := convs[0]
	if c.Key != Resolve("L", "S") {
		t.Errorf("key = %q", c.Key)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2 (only A's replies to S)", c.UnreadCount)
	}
	if c.LastMessage.ID != "4" {
		t.Errorf("last message = %s, want 4", c.LastMessage.ID)
	}
	if c.Counterpart.ID != "A" || c.Counterpart.Role != models.RoleAgency {
		t.Errorf("counterpart = %+v", c.Counterpart)
	}
}

func TestAggregateAgencySeesPerStudentThreads(t *testing.T) {
	t.Parallel()

	all := []models.Message{
		msg("1", "S", models.RoleStudent, 0, false),
		msg("2", "T", models.RoleStudent, 1, true),
		msg("3", "T", models.RoleStudent, 2, false),
		msg("4", "S", models.RoleAgency, 3, false),
	}

	convs := Aggregate(models.Viewer{ID: "A", Role: models.RoleAgency}, all)
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}

	byKey := map[string]models.Conversation{}
	for _, c := range convs {
		byKey[c.Key] = c
	}
	s := byKey[Resolve("L", "S")]
	if s.UnreadCount != 1 {
		t.Errorf("S unread = %d, want 1", s.UnreadCount)
	}
	if s.Counterpart.ID != "S" || s.Counterpart.University != "Uni" {
		t.Errorf("S counterpart = %+v", s.Counterpart)
	}
	tt := byKey[Resolve("L", "T")]
	if tt.UnreadCount != 1 {
		t.Errorf("T unread = %d, want 1", tt.UnreadCount)
	}
}

func TestAggregateUnreadInvariantUnderPermutation(t *testing.T) {
	t.Parallel()

	base := []models.Message{
		msg("1", "S", models.RoleStudent, 0, false),
		msg("2", "S", models.RoleAgency, 1, false),
		msg("3", "S", models.RoleAgency, 2, true),
		msg("4", "S", models.RoleStudent, 3, false),
		msg("5", "S", models.RoleAgency, 4, false),
		msg("6", "S", models.RoleAgency, 4, false),
	}
	viewer := models.Viewer{ID: "S", Role: models.RoleStudent}

	want := 0
	for i := range base {
		if base[i].SenderID != viewer.ID && base[i].ReadAt == nil {
			want++
		}
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		perm := append([]models.Message(nil), base...)
		rng.Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })

		convs := Aggregate(viewer, perm)
		if len(convs) != 1 {
			t.Fatalf("expected 1 conversation, got %d", len(convs))
		}
		if convs[0].UnreadCount != want {
			t.Fatalf("permutation %d: unread = %d, want %d", i, convs[0].UnreadCount, want)
		}
		// Equal timestamps: the larger id wins.
		if convs[0].LastMessage.ID != "6" {
			t.Fatalf("permutation %d: last = %s, want 6", i, convs[0].LastMessage.ID)
		}
	}
}

func TestAggregateOwnMessageOnly(t *testing.T) {
	t.Parallel()

	m := msg("1", "S", models.RoleStudent, 0, false)
	m.RecipientContact = "+44 1234"

	convs := Aggregate(models.Viewer{ID: "S", Role: models.RoleStudent}, []models.Message{m})
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	c := convs[0]
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", c.UnreadCount)
	}
	want := models.CounterpartSummary{ID: "A", Role: models.RoleAgency, Name: "Agency A", Contact: "+44 1234"}
	if c.Counterpart != want {
		t.Errorf("counterpart = %+v, want %+v", c.Counterpart, want)
	}
}

func TestAggregateListingFromNewestCarrier(t *testing.T) {
	t.Parallel()

	old := msg("1", "S", models.RoleStudent, 0, false)
	old.ListingTitle, old.ListingPrice = "Old title", 500
	newer := msg("2", "S", models.RoleStudent, 1, false)
	newer.ListingTitle, newer.ListingPrice, newer.ListingAddress = "New title", 550, "1 High St"
	newest := msg("3", "S", models.RoleAgency, 2, false)

	convs := Aggregate(models.Viewer{ID: "A", Role: models.RoleAgency}, []models.Message{old, newest, newer})
	got := convs[0].Listing
	if got.Title != "New title" || got.Price != 550 || got.Address != "1 High St" || got.ListingID != "L" {
		t.Errorf("listing = %+v", got)
	}
}

func TestSortByRecent(t *testing.T) {
	t.Parallel()

	convs := []models.Conversation{
		{Key: "b", LastMessage: models.Message{CreatedAt: t0}},
		{Key: "c", LastMessage: models.Message{CreatedAt: t0.Add(time.Hour)}},
		{Key: "a", LastMessage: models.Message{CreatedAt: t0}},
	}
	SortByRecent(convs)

	got := []string{convs[0].Key, convs[1].Key, convs[2].Key}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

type fakeLister struct {
	msgs   []models.Message
	err    error
	calls  int
	viewer models.Viewer
}

func (f *fakeLister) ListForViewer(_ context.Context, viewer models.Viewer) ([]models.Message, error) {
	f.calls++
	f.viewer = viewer
	return append([]models.Message(nil), f.msgs...), f.err
}

func TestAggregatorListAndTotalUnread(t *testing.T) {
	t.Parallel()

	store := &fakeLister{msgs: []models.Message{
		msg("1", "S", models.RoleStudent, 0, false),
		msg("2", "T", models.RoleStudent, 5, false),
		msg("3", "T", models.RoleStudent, 6, false),
	}}
	agg := NewAggregator(store)
	viewer := models.Viewer{ID: "A", Role: models.RoleAgency}

	convs, err := agg.List(context.Background(), viewer)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(convs) != 2 || convs[0].Key != Resolve("L", "T") {
		t.Fatalf("expected T thread first, got %+v", convs)
	}
	if store.viewer != viewer {
		t.Errorf("store queried with %+v", store.viewer)
	}

	total, err := agg.TotalUnread(context.Background(), viewer)
	if err != nil {
		t.Fatalf("TotalUnread: %v", err)
	}
	if total != 3 {
		t.Errorf("total unread = %d, want 3", total)
	}
}

func TestAggregatorErrors(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(&fakeLister{err: errors.New("db down")})
	if _, err := agg.List(context.Background(), models.Viewer{ID: "A", Role: models.RoleAgency}); err == nil {
		t.Error("expected store error")
	}
	if _, err := agg.List(context.Background(), models.Viewer{ID: "A", Role: "landlord"}); !errors.Is(err, models.ErrAuthorization) {
		t.Errorf("invalid role err = %v", err)
	}
}
