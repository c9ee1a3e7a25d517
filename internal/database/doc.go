// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

/*
Package database is the DuckDB-backed message store.

The store owns one table, messages, holding every direct message between a
student and a listing agency. Rows are append-only; only read_at,
replied_at and updated_at change after insert, and those only move from
NULL to a timestamp.

Integrity rules enforced by the schema:
  - conversation_id must equal conversation_key(listing_id, student_id),
    rendered from the same definition as conversation.Resolve
  - sender_id must be the party named by sender_role
  - body must contain non-whitespace text

Operations:
  - InsertMessage: validate, authorize and append a draft
  - ListByConversation, ListForViewer: ordered by (created_at, id)
  - MarkRead: set read_at on the counterpart's unread rows, idempotent
  - MarkFirstReplied: set replied_at once per conversation
  - GetMessage, ConversationParties: lookups for authorization

All writes are committed before the call returns.
*/
package database
