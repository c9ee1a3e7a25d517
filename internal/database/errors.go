// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package database

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/roomlink/internal/logging"
)

const (
	conflictRetries = 3
	conflictBackoff = 10 * time.Millisecond
)

// closeWithLog closes a resource and logs a failure.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource on error paths where the close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// isTransactionConflict reports a DuckDB optimistic concurrency conflict.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Transaction conflict") ||
		strings.Contains(errStr, "Conflict on update")
}

// isConstraintViolation reports a CHECK, NOT NULL or key constraint failure.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Constraint Error") ||
		strings.Contains(errStr, "CHECK constraint")
}

// retryOnConflict runs fn until it succeeds, fails with a non-conflict
// error, or exhausts conflictRetries.
func retryOnConflict(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= conflictRetries; attempt++ {
		err = fn()
		if !isTransactionConflict(err) {
			return err
		}
		logging.Debug().Str("op", op).Int("attempt", attempt).Msg("Transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
	return err
}
