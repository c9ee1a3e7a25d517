// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

/*
Package models defines the data structures shared by the Roomlink packages.

Persisted:
  - Message: one row of the messages table, with denormalized sender,
    recipient and listing display fields

Derived:
  - Conversation: one thread per conversation key, recomputed on every read
  - ListingSummary, CounterpartSummary: typed projections attached to a Conversation

Input:
  - MessageDraft: sender-supplied fields, validated with go-playground/validator tags
  - Viewer: authenticated caller id and role (agency or student)

Errors:
  - ErrValidation, ErrAuthorization, ErrNotFound, ErrTransport and
    ErrNotificationDispatch, with typed wrappers that satisfy errors.Is
*/
package models
