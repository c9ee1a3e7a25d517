// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/database/query"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
)

const messageColumns = `id, conversation_id, listing_id, student_id, agency_id,
	sender_id, sender_role, recipient_id, body,
	sender_name, sender_contact, sender_university, recipient_name, recipient_contact,
	listing_title, listing_image, listing_price, listing_address, client_nonce,
	created_at, read_at, replied_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var readAt, repliedAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.ConversationID, &m.ListingID, &m.StudentID, &m.AgencyID,
		&m.SenderID, &m.SenderRole, &m.RecipientID, &m.Body,
		&m.SenderName, &m.SenderContact, &m.SenderUniversity, &m.RecipientName, &m.RecipientContact,
		&m.ListingTitle, &m.ListingImage, &m.ListingPrice, &m.ListingAddress, &m.ClientNonce,
		&m.CreatedAt, &readAt, &repliedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}

	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	if readAt.Valid {
		t := readAt.Time.UTC()
		m.ReadAt = &t
	}
	if repliedAt.Valid {
		t := repliedAt.Time.UTC()
		m.RepliedAt = &t
	}
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// checkDraft applies the write-side rules that need no database access.
func checkDraft(viewer models.Viewer, draft *models.MessageDraft) (string, error) {
	if draft == nil {
		return "", models.NewValidationError("draft", "is required")
	}
	if !viewer.Valid() {
		return "", models.NewAuthorizationError(viewer.ID, "viewer is not authenticated")
	}
	if !models.IsValidRole(draft.SenderRole) {
		return "", models.NewValidationError("sender_role", "must be agency or student")
	}
	if strings.TrimSpace(draft.Body) == "" {
		return "", models.NewValidationError("body", "must not be empty")
	}
	if strings.TrimSpace(draft.AgencyID) == "" {
		return "", models.NewValidationError("agency_id", "is required")
	}

	key, err := conversation.ResolveChecked(draft.ListingID, draft.StudentID)
	if err != nil {
		return "", err
	}
	if draft.ConversationID != "" && draft.ConversationID != key {
		return "", models.NewValidationError("conversation_id", "does not match listing and student")
	}

	if viewer.ID != draft.SenderID || viewer.Role != draft.SenderRole {
		return "", models.NewAuthorizationError(viewer.ID, "viewer is not the sender")
	}
	party := draft.StudentID
	if draft.SenderRole == models.RoleAgency {
		party = draft.AgencyID
	}
	if draft.SenderID != party {
		return "", models.NewAuthorizationError(viewer.ID, "sender is not a party to the conversation")
	}
	return key, nil
}

// InsertMessage validates and appends a draft on behalf of viewer.
//
// The store assigns the id, created_at and conversation_id. A draft that
// repeats a ClientNonce the sender already used returns the stored row
// instead of inserting a duplicate.
func (db *DB) InsertMessage(ctx context.Context, viewer models.Viewer, draft *models.MessageDraft) (*models.Message, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	key, err := checkDraft(viewer, draft)
	if err != nil {
		metrics.RecordMessageRejected(rejectReason(err))
		return nil, err
	}

	_, agencyID, err := db.ConversationParties(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return nil, err
	case agencyID != draft.AgencyID:
		metrics.RecordMessageRejected("authorization")
		return nil, models.NewAuthorizationError(viewer.ID, "agency does not own this conversation")
	}

	if draft.ClientNonce != "" {
		if existing, err := db.findByNonce(ctx, draft.SenderID, draft.ClientNonce); err == nil {
			return existing, nil
		} else if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	now := db.now()
	m := &models.Message{
		ID:               uuid.New().String(),
		ConversationID:   key,
		ListingID:        draft.ListingID,
		StudentID:        draft.StudentID,
		AgencyID:         draft.AgencyID,
		SenderID:         draft.SenderID,
		SenderRole:       draft.SenderRole,
		RecipientID:      draft.RecipientID(),
		Body:             draft.Body,
		SenderName:       draft.SenderName,
		SenderContact:    draft.SenderContact,
		SenderUniversity: draft.SenderUniversity,
		RecipientName:    draft.RecipientName,
		RecipientContact: draft.RecipientContact,
		ListingTitle:     draft.ListingTitle,
		ListingImage:     draft.ListingImage,
		ListingPrice:     draft.ListingPrice,
		ListingAddress:   draft.ListingAddress,
		ClientNonce:      draft.ClientNonce,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	q := `INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)`

	start := time.Now()
	_, err = db.conn.ExecContext(ctx, q,
		m.ID, m.ConversationID, m.ListingID, m.StudentID, m.AgencyID,
		m.SenderID, m.SenderRole, m.RecipientID, m.Body,
		m.SenderName, m.SenderContact, m.SenderUniversity, m.RecipientName, m.RecipientContact,
		m.ListingTitle, m.ListingImage, m.ListingPrice, m.ListingAddress, m.ClientNonce,
		m.CreatedAt, m.UpdatedAt,
	)
	metrics.RecordDBQuery("INSERT", "messages", time.Since(start), err)
	if err != nil {
		if isConstraintViolation(err) {
			metrics.RecordMessageRejected("constraint")
			return nil, models.NewValidationError("message", "rejected by store constraint")
		}
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	metrics.RecordMessageSent(m.SenderRole)
	return m, nil
}

func rejectReason(err error) string {
	if errors.Is(err, models.ErrAuthorization) {
		return "authorization"
	}
	return "validation"
}

func (db *DB) findByNonce(ctx context.Context, senderID, nonce string) (*models.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE sender_id = ? AND client_nonce = ? LIMIT 1`
	m, err := scanMessage(db.conn.QueryRowContext(ctx, q, senderID, nonce))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up client nonce: %w", err)
	}
	return &m, nil
}

// ListByConversation returns the thread ordered by (created_at, id).
func (db *DB) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	wb := query.NewWhereBuilder().AddClause("conversation_id = ?", conversationID)
	return db.listMessages(ctx, "list_by_conversation", wb)
}

// ListForViewer returns every row the viewer is a party to: all rows of
// the agency's listings for an agency, the student's own conversations for
// a student.
func (db *DB) ListForViewer(ctx context.Context, viewer models.Viewer) ([]models.Message, error) {
	if !viewer.Valid() {
		return nil, models.NewAuthorizationError(viewer.ID, "viewer is not authenticated")
	}

	wb := query.NewWhereBuilder()
	if viewer.IsAgency() {
		wb.AddClause("agency_id = ?", viewer.ID)
	} else {
		wb.AddClause("student_id = ?", viewer.ID)
	}
	return db.listMessages(ctx, "list_for_viewer", wb)
}

func (db *DB) listMessages(ctx context.Context, op string, wb *query.WhereBuilder) ([]models.Message, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	where, args := wb.BuildWithPrefix()
	q := `SELECT ` + messageColumns + ` FROM messages ` + where + ` ORDER BY created_at, id`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, q, args...)
	metrics.RecordDBQuery("SELECT", "messages", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer closeWithLog(rows, "rows")

	return scanMessages(rows)
}

// MarkRead sets read_at on every row of the conversation that readerID did
// not author, is still unread, and was created at or before before. A zero
// before means now. Rows already read are untouched, so repeated calls are
// no-ops. The updated rows are returned in thread order.
func (db *DB) MarkRead(ctx context.Context, conversationID, readerID string, before time.Time) ([]models.Message, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	if conversationID == "" || readerID == "" {
		return nil, models.NewValidationError("conversation_id", "conversation and reader are required")
	}

	now := db.now()
	if before.IsZero() || before.After(now) {
		before = now
	}

	wb := query.NewWhereBuilder().
		AddClause("conversation_id = ?", conversationID).
		AddClause("sender_id <> ?", readerID).
		AddIsNull("read_at").
		AddUntil("created_at", &before)
	where, whereArgs := wb.BuildWithPrefix()

	q := `UPDATE messages SET read_at = ?, updated_at = ? ` + where + ` RETURNING ` + messageColumns
	args := append([]interface{}{now, now}, whereArgs...)

	var updated []models.Message
	err := retryOnConflict(ctx, "mark_read", func() error {
		start := time.Now()
		rows, err := db.conn.QueryContext(ctx, q, args...)
		metrics.RecordDBQuery("UPDATE", "messages", time.Since(start), err)
		if err != nil {
			return err
		}
		defer closeWithLog(rows, "rows")

		updated, err = scanMessages(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}

	sortThread(updated)
	metrics.RecordReadMark(len(updated))
	return updated, nil
}

// MarkFirstReplied stamps replied_at on the earliest student-authored row
// of the conversation, provided agencyID owns it and no row in the
// conversation carries replied_at yet. It returns nil when nothing changed.
func (db *DB) MarkFirstReplied(ctx context.Context, conversationID, agencyID string) (*models.Message, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	now := db.now()
	q := `UPDATE messages SET replied_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM messages
			WHERE conversation_id = ? AND agency_id = ? AND sender_role = 'student' AND replied_at IS NULL
			ORDER BY created_at, id
			LIMIT 1
		)
		AND NOT EXISTS (
			SELECT 1 FROM messages WHERE conversation_id = ? AND replied_at IS NOT NULL
		)
		RETURNING ` + messageColumns

	var marked *models.Message
	err := retryOnConflict(ctx, "mark_first_replied", func() error {
		start := time.Now()
		m, err := scanMessage(db.conn.QueryRowContext(ctx, q, now, now, conversationID, agencyID, conversationID))
		metrics.RecordDBQuery("UPDATE", "messages", time.Since(start), err)
		if errors.Is(err, sql.ErrNoRows) {
			marked = nil
			return nil
		}
		if err != nil {
			return err
		}
		marked = &m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark first reply: %w", err)
	}
	return marked, nil
}

// GetMessage returns one row by id.
func (db *DB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	q := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	start := time.Now()
	m, err := scanMessage(db.conn.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("SELECT", "messages", time.Since(start), nil)
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	metrics.RecordDBQuery("SELECT", "messages", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &m, nil
}

// ConversationParties returns the student and agency of an existing
// conversation, or models.ErrNotFound if it has no rows.
func (db *DB) ConversationParties(ctx context.Context, conversationID string) (studentID, agencyID string, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()

	q := `SELECT student_id, agency_id FROM messages WHERE conversation_id = ? ORDER BY created_at, id LIMIT 1`

	start := time.Now()
	err = db.conn.QueryRowContext(ctx, q, conversationID).Scan(&studentID, &agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("SELECT", "messages", time.Since(start), nil)
		return "", "", fmt.Errorf("conversation %s: %w", conversationID, models.ErrNotFound)
	}
	metrics.RecordDBQuery("SELECT", "messages", time.Since(start), err)
	if err != nil {
		return "", "", fmt.Errorf("failed to get conversation parties: %w", err)
	}
	return studentID, agencyID, nil
}

func sortThread(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Less(&msgs[j])
	})
}
