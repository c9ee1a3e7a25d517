// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package websocket

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/realtime"
)

//nolint:gochecknoinits // init keeps test output quiet
func init() {
	logging.Init(logging.Config{Level: "error", Format: "console", Output: io.Discard})
}

var (
	studentS = models.Viewer{ID: "student-s", Role: models.RoleStudent}
	agencyA  = models.Viewer{ID: "agency-a", Role: models.RoleAgency}
	keyLS    = conversation.Resolve("listing-1", "student-s")
	keyLT    = conversation.Resolve("listing-1", "student-t")
)

type fakeSub struct {
	t  *fakeTransport
	id int
}

func (s *fakeSub) Unsubscribe() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.subs, s.id)
}

type subEntry struct {
	listingID   string
	recipientID string
	handler     realtime.Handler
}

type fakeTransport struct {
	mu   sync.Mutex
	subs map[int]subEntry
	next int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[int]subEntry)}
}

func (f *fakeTransport) Subscribe(_ context.Context, filter realtime.Filter, h realtime.Handler) (realtime.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.subs[f.next] = subEntry{listingID: filter.ListingID, recipientID: filter.RecipientID, handler: h}
	return &fakeSub{t: f, id: f.next}, nil
}

func (f *fakeTransport) status(st realtime.Status) {
	f.mu.Lock()
	var handlers []realtime.Handler
	for _, s := range f.subs {
		handlers = append(handlers, s.handler)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		if h.OnStatus != nil {
			h.OnStatus(st)
		}
	}
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeTransport) deliver(ev realtime.Event) {
	f.mu.Lock()
	var handlers []realtime.Handler
	for _, s := range f.subs {
		switch {
		case s.listingID != "" && s.listingID == ev.Message.ListingID:
			handlers = append(handlers, s.handler)
		case s.recipientID != "" && s.recipientID == ev.Message.RecipientID && ev.Kind == realtime.EventInsert:
			handlers = append(handlers, s.handler)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h.OnEvent(ev)
	}
}

type fakeMessenger struct {
	mu      sync.Mutex
	history map[string][]models.Message
	sendErr error
	marks   int
	unread  int
	seq     int
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{history: make(map[string][]models.Message)}
}

func (f *fakeMessenger) ListByConversation(_ context.Context, key string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.history[key]...), nil
}

func (f *fakeMessenger) MarkRead(_ context.Context, _, _ string, _ time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks++
	f.unread = 0
	return nil, nil
}

func (f *fakeMessenger) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks
}

func (f *fakeMessenger) Authorize(_ context.Context, viewer models.Viewer, key string) error {
	_, studentID, err := conversation.ParseKey(key)
	if err != nil {
		return err
	}
	if viewer.Role == models.RoleStudent && viewer.ID != studentID {
		return models.NewAuthorizationError(viewer.ID, "not a party")
	}
	return nil
}

func (f *fakeMessenger) Send(_ context.Context, viewer models.Viewer, d *models.MessageDraft) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.seq++
	m := optimisticMessage(d)
	m.ID = fmt.Sprintf("m-%d", f.seq)
	m.CreatedAt = time.Date(2026, 3, 1, 12, 0, f.seq, 0, time.UTC)
	m.UpdatedAt = m.CreatedAt
	f.history[m.ConversationID] = append(f.history[m.ConversationID], m)
	return &m, nil
}

func (f *fakeMessenger) UnreadCount(context.Context, models.Viewer) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread, nil
}

func conversationKey(listingID string) string {
	return conversation.Resolve(listingID, studentS.ID)
}

func row(id, key, listingID, studentID string, sender models.Viewer, sec int) models.Message {
	at := time.Date(2026, 3, 1, 11, 0, sec, 0, time.UTC)
	return models.Message{
		ID:             id,
		ConversationID: key,
		ListingID:      listingID,
		StudentID:      studentID,
		AgencyID:       agencyA.ID,
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		Body:           "body " + id,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// newTestClient returns a client without a connection; frames are driven
// through handleFrame and read back from the send buffer.
func newTestClient(t *testing.T, viewer models.Viewer, m *fakeMessenger, tr *fakeTransport) *Client {
	t.Helper()
	hub := NewHub(HubConfig{Messenger: m, Transport: tr, ReadDebounce: 20 * time.Millisecond, MaxViews: 2})
	c := NewClient(hub, nil, viewer)
	t.Cleanup(func() {
		c.closeViews()
		c.cancel()
	})
	return c
}

func next(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a server frame")
		return Message{}
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected frame %s: %+v", msg.Type, msg.Data)
	case <-time.After(50 * time.Millisecond):
	}
}
