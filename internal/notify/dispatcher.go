// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package notify triggers the external new-message notification job after
// a message is stored.
//
// Dispatch is fire-and-forget: it never blocks the sender and never
// returns an error to the send path. Failures are logged and counted.
// Without a Journal a failed job is not retried. With one, each dispatch is
// recorded before the job runs and confirmed after it succeeds, and
// whatever is left pending is replayed through Replay.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/roomlink/internal/cache"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/wal"
)

// JobPayload is the argument of the notification job.
type JobPayload struct {
	MessageID string `json:"message_id"`
}

// Invoker runs a named job.
type Invoker interface {
	Invoke(ctx context.Context, jobName string, payload JobPayload) error
}

// Journal durably records dispatches until the job accepts them.
// *wal.BadgerWAL implements it.
type Journal interface {
	Write(ctx context.Context, payload interface{}) (string, error)
	Confirm(ctx context.Context, entryID string) error
	RecordAttempt(ctx context.Context, entryID, lastError string) error
	TryClaim(entryID string) bool
	Release(entryID string)
}

// Config configures a Dispatcher.
type Config struct {
	JobName string

	// Journal is optional.
	Journal Journal

	// QueueSize bounds pending dispatches; beyond it new ones are dropped.
	QueueSize int

	// Timeout bounds one invocation.
	Timeout time.Duration

	DedupCapacity int
	DedupTTL      time.Duration
}

// Dispatcher runs notification jobs on a background worker.
type Dispatcher struct {
	invoker Invoker
	journal Journal
	jobName string
	timeout time.Duration
	queue   chan dispatch
	seen    *cache.Dedup

	mu      sync.RWMutex
	running bool
}

type dispatch struct {
	messageID string
	entryID   string
}

// NewDispatcher creates a dispatcher. Call Serve to start the worker.
func NewDispatcher(cfg Config, invoker Invoker) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if invoker == nil {
		invoker = NopInvoker{}
	}

	return &Dispatcher{
		invoker: invoker,
		journal: cfg.Journal,
		jobName: cfg.JobName,
		timeout: timeout,
		queue:   make(chan dispatch, queueSize),
		seen:    cache.NewDedup(cfg.DedupCapacity, cfg.DedupTTL),
	}
}

// Dispatch queues the job for messageID and returns immediately. A message
// id already dispatched within the dedup window is ignored.
func (d *Dispatcher) Dispatch(messageID string) {
	if messageID == "" {
		return
	}
	if d.seen.IsDuplicate(messageID) {
		metrics.RecordNotification(d.jobName, "duplicate", 0)
		return
	}

	job := dispatch{messageID: messageID}
	if d.journal != nil {
		entryID, err := d.journal.Write(context.Background(), JobPayload{MessageID: messageID})
		if err != nil {
			logging.Warn().Err(err).Str("job", d.jobName).Str("message_id", messageID).Msg("Failed to journal notification dispatch")
		}
		job.entryID = entryID
	}

	select {
	case d.queue <- job:
	default:
		if job.entryID != "" {
			metrics.RecordNotification(d.jobName, "deferred", 0)
			logging.Warn().Str("job", d.jobName).Str("message_id", messageID).Msg("Notification queue full, leaving dispatch for replay")
			return
		}
		metrics.RecordNotification(d.jobName, "dropped", 0)
		logging.Warn().Str("job", d.jobName).Str("message_id", messageID).Msg("Notification queue full, dropping dispatch")
	}
}

// Serve runs the worker until ctx is canceled. Queued dispatches left at
// shutdown are dropped unless journaled.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("notification dispatcher already running")
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	logging.Info().Str("job", d.jobName).Msg("Notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				logging.Warn().Int("pending", n).Msg("Notification dispatcher stopping with pending jobs")
			}
			return ctx.Err()
		case job := <-d.queue:
			d.run(ctx, job)
		}
	}
}

// String names the service for the supervisor.
func (d *Dispatcher) String() string {
	return "notification-dispatcher"
}

func (d *Dispatcher) run(ctx context.Context, job dispatch) {
	if job.entryID != "" {
		if !d.journal.TryClaim(job.entryID) {
			return
		}
		defer d.journal.Release(job.entryID)
	}

	err := d.invoke(ctx, job.messageID)
	if job.entryID == "" {
		return
	}
	if err != nil {
		if recErr := d.journal.RecordAttempt(ctx, job.entryID, err.Error()); recErr != nil && !errors.Is(recErr, wal.ErrEntryNotFound) {
			logging.Warn().Err(recErr).Str("entry_id", job.entryID).Msg("Failed to record notification attempt")
		}
		return
	}
	if confErr := d.journal.Confirm(ctx, job.entryID); confErr != nil && !errors.Is(confErr, wal.ErrEntryNotFound) {
		logging.Warn().Err(confErr).Str("entry_id", job.entryID).Msg("Failed to confirm notification dispatch")
	}
}

// Replay re-runs a journaled dispatch. It is the wal.ReplayFunc for the
// outbox retry loop.
func (d *Dispatcher) Replay(ctx context.Context, entry *wal.Entry) error {
	var payload JobPayload
	if err := entry.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.MessageID == "" {
		return errors.New("journaled notification has no message id")
	}
	return d.invoke(ctx, payload.MessageID)
}

func (d *Dispatcher) invoke(ctx context.Context, messageID string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.invoker.Invoke(ctx, d.jobName, JobPayload{MessageID: messageID})
	duration := time.Since(start)

	if err != nil {
		metrics.RecordNotification(d.jobName, "failure", duration)
		dispatchErr := &models.NotificationDispatchError{JobName: d.jobName, MessageID: messageID, Err: err}
		logging.Warn().Err(dispatchErr).Str("job", d.jobName).Str("message_id", messageID).Msg("Notification dispatch failed")
		return dispatchErr
	}

	metrics.RecordNotification(d.jobName, "success", duration)
	logging.Debug().Str("job", d.jobName).Str("message_id", messageID).Dur("duration", duration).Msg("Notification dispatched")
	return nil
}

// NopInvoker accepts every job without doing anything.
type NopInvoker struct{}

// Invoke does nothing.
func (NopInvoker) Invoke(context.Context, string, JobPayload) error { return nil }
