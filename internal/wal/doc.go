// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package wal is a BadgerDB outbox for work that must survive a restart.
//
// The notification dispatcher writes an entry before invoking the external
// job and confirms it after the job accepts. Entries left pending by a
// failed invocation or a crash are replayed by RetryLoop with exponential
// backoff until they succeed, exceed MaxAttempts, or outlive EntryTTL.
//
//	w, err := wal.Open(cfg)
//	id, _ := w.Write(ctx, payload)
//	if err := invoke(payload); err == nil {
//	    _ = w.Confirm(ctx, id)
//	}
//
// Keys are "pending:<uuid>" holding the JSON-encoded Entry. Confirm deletes
// the key; there is no separate confirmed state to compact.
package wal
