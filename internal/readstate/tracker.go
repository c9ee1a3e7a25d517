// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package readstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
)

// DefaultDelay is the debounce window between a trigger and the mark.
const DefaultDelay = 750 * time.Millisecond

// Marker persists read state.
type Marker interface {
	MarkRead(ctx context.Context, conversationID, readerID string, before time.Time) ([]models.Message, error)
}

// Config configures a Tracker.
type Config struct {
	ConversationID string
	ReaderID       string
	Marker         Marker
	Signal         *Signal
	Delay          time.Duration

	// OnMarked receives the rows changed by each successful mark, for
	// publishing read receipts. It may be nil.
	OnMarked func([]models.Message)
}

// Tracker schedules debounced MarkRead calls for one open conversation.
//
// A trigger starts a single-shot timer unless one is already pending, so a
// burst of arrivals within Delay produces one write. Inbound arrivals only
// trigger while the view is focused.
type Tracker struct {
	key      string
	readerID string
	marker   Marker
	signal   *Signal
	delay    time.Duration
	onMarked func([]models.Message)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	focused bool
	closed  bool
	wg      sync.WaitGroup
}

// NewTracker creates a focused tracker. Nothing is scheduled until Open.
func NewTracker(cfg Config) *Tracker {
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Tracker{
		key:      cfg.ConversationID,
		readerID: cfg.ReaderID,
		marker:   cfg.Marker,
		signal:   cfg.Signal,
		delay:    delay,
		onMarked: cfg.OnMarked,
		ctx:      ctx,
		cancel:   cancel,
		focused:  true,
	}
}

// Open schedules the mark for a freshly opened thread.
func (t *Tracker) Open() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scheduleLocked()
}

// Inbound schedules a mark for a newly accepted counterpart message when
// the view is focused.
func (t *Tracker) Inbound(models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.focused {
		t.scheduleLocked()
	}
}

// SetFocused records view focus. Regaining focus schedules a mark, since
// messages may have arrived while the view was in the background.
func (t *Tracker) SetFocused(focused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasFocused := t.focused
	t.focused = focused
	if focused && !wasFocused {
		t.scheduleLocked()
	}
}

// Pending reports whether a mark is scheduled.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *Tracker) scheduleLocked() {
	if t.closed || t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.delay, t.fire)
}

func (t *Tracker) fire() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	updated, err := t.marker.MarkRead(t.ctx, t.key, t.readerID, time.Time{})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.Warn().Err(err).Str("conversation_id", t.key).Msg("Failed to mark conversation read")
		}
		return
	}

	if len(updated) > 0 && t.onMarked != nil {
		t.onMarked(updated)
	}
	if t.signal != nil {
		t.signal.Notify()
	}
}

// Close cancels any pending mark and waits for one already running to
// finish. No mark starts after Close returns.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}
