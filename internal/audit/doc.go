// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package audit records security-relevant request outcomes: rejected
// credentials and denied authorization checks.
//
// Events are handed to Logger.Log, buffered in a channel and written to a
// Store by the Logger's Serve loop, which also deletes events older than
// the retention window. The production store is the audit_events table in
// the message database; MemoryStore serves tests.
//
//	store := audit.NewDuckDBStore(db.Conn())
//	if err := store.CreateTable(ctx); err != nil { ... }
//	auditor := audit.NewLogger(store, audit.Config{Enabled: true})
//	authn := auth.NewMiddleware(tokens).WithAuditor(auditor)
//
// Log never blocks. A full buffer drops the event with a warning.
package audit
