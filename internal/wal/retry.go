// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tomtom215/roomlink/internal/logging"
)

// ReplayFunc re-runs the work recorded in entry. A nil return confirms it.
type ReplayFunc func(ctx context.Context, entry *Entry) error

type retryResult int

const (
	retryResultSkipped retryResult = iota
	retryResultSuccess
	retryResultFailed
	retryResultExpired
	retryResultMaxAttempts
)

// RetryLoop periodically replays pending entries. It is a supervisor
// service: Serve blocks until ctx is canceled.
type RetryLoop struct {
	wal     *BadgerWAL
	replay  ReplayFunc
	config  Config
	timeout time.Duration

	// gcEvery runs value log GC once per this many passes.
	gcEvery int
}

// NewRetryLoop creates a loop replaying entries through replay. timeout
// bounds one replay call.
func NewRetryLoop(w *BadgerWAL, replay ReplayFunc, timeout time.Duration) *RetryLoop {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RetryLoop{
		wal:     w,
		replay:  replay,
		config:  w.Config(),
		timeout: timeout,
		gcEvery: 20,
	}
}

// Serve runs a pass immediately, then every RetryInterval.
func (r *RetryLoop) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", r.config.RetryInterval).Msg("Outbox retry loop started")

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	passes := 0
	for {
		r.RunOnce(ctx)
		passes++
		if passes%r.gcEvery == 0 {
			if err := r.wal.RunGC(); err != nil && !errors.Is(err, ErrWALClosed) {
				logging.Warn().Err(err).Msg("Outbox value log GC failed")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// String names the service for the supervisor.
func (r *RetryLoop) String() string {
	return "outbox-retry-loop"
}

// RunOnce makes one pass over the pending entries and returns how many
// were confirmed.
func (r *RetryLoop) RunOnce(ctx context.Context) int {
	entries, err := r.wal.GetPending(ctx)
	if err != nil {
		if !errors.Is(err, ErrWALClosed) && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Outbox retry: failed to read pending entries")
		}
		return 0
	}
	walPendingEntries.Set(float64(len(entries)))

	confirmed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		switch r.processEntry(ctx, entry) {
		case retryResultSuccess:
			confirmed++
			walReplaysTotal.WithLabelValues("success").Inc()
		case retryResultFailed:
			walReplaysTotal.WithLabelValues("failure").Inc()
		case retryResultExpired:
			walReplaysTotal.WithLabelValues("dropped_expired").Inc()
		case retryResultMaxAttempts:
			walReplaysTotal.WithLabelValues("dropped_max_attempts").Inc()
		case retryResultSkipped:
		}
	}
	return confirmed
}

func (r *RetryLoop) processEntry(ctx context.Context, entry *Entry) retryResult {
	if !r.wal.TryClaim(entry.ID) {
		return retryResultSkipped
	}
	defer r.wal.Release(entry.ID)

	if r.config.EntryTTL > 0 && time.Since(entry.CreatedAt) > r.config.EntryTTL {
		logging.Warn().Str("entry_id", entry.ID).Time("created_at", entry.CreatedAt).Msg("Outbox entry expired, dropping")
		r.drop(ctx, entry.ID)
		return retryResultExpired
	}
	if entry.Attempts >= r.config.MaxAttempts {
		logging.Error().
			Str("entry_id", entry.ID).
			Int("attempts", entry.Attempts).
			Str("last_error", entry.LastError).
			Msg("Outbox entry exceeded max attempts, dropping")
		r.drop(ctx, entry.ID)
		return retryResultMaxAttempts
	}
	if !r.isReadyForRetry(entry) {
		return retryResultSkipped
	}

	replayCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.replay(replayCtx, entry)
	cancel()

	if err != nil {
		logging.Warn().Err(err).Str("entry_id", entry.ID).Int("attempt", entry.Attempts+1).Msg("Outbox retry failed")
		if recErr := r.wal.RecordAttempt(ctx, entry.ID, err.Error()); recErr != nil && !errors.Is(recErr, ErrEntryNotFound) {
			logging.Error().Err(recErr).Str("entry_id", entry.ID).Msg("Outbox retry: failed to record attempt")
		}
		return retryResultFailed
	}

	if err := r.wal.Confirm(ctx, entry.ID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Outbox retry: failed to confirm entry")
		return retryResultFailed
	}
	return retryResultSuccess
}

func (r *RetryLoop) drop(ctx context.Context, entryID string) {
	if err := r.wal.Drop(ctx, entryID); err != nil && !errors.Is(err, ErrEntryNotFound) {
		logging.Error().Err(err).Str("entry_id", entryID).Msg("Outbox retry: failed to drop entry")
	}
}

// isReadyForRetry waits out the backoff since the last attempt. Entries
// that were never attempted wait one base backoff from creation, giving
// the in-flight first attempt time to finish.
func (r *RetryLoop) isReadyForRetry(entry *Entry) bool {
	last := entry.LastAttemptAt
	if last.IsZero() {
		last = entry.CreatedAt
	}
	return time.Since(last) >= r.calculateBackoff(entry.Attempts)
}

// calculateBackoff returns base * 2^attempts, capped at MaxBackoff.
func (r *RetryLoop) calculateBackoff(attempts int) time.Duration {
	maxBackoff := r.config.MaxBackoff
	if attempts > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(r.config.RetryBackoff) * math.Pow(2, float64(attempts)))
	if backoff < 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
