// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type replayRecorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *replayRecorder) replay(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, entry.ID)
	return r.err
}

func (r *replayRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestRetryLoop_ReplaysAndConfirms(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()
	id, _ := w.Write(ctx, testPayload{MessageID: "m1"})

	rec := &replayRecorder{}
	loop := NewRetryLoop(w, rec.replay, time.Second)

	time.Sleep(5 * time.Millisecond)
	if n := loop.RunOnce(ctx); n != 1 {
		t.Fatalf("RunOnce confirmed %d, want 1", n)
	}
	if rec.count() != 1 || rec.calls[0] != id {
		t.Errorf("replayed %v, want [%s]", rec.calls, id)
	}
	if _, err := w.Get(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("entry still pending: %v", err)
	}
}

func TestRetryLoop_WaitsForFirstBackoff(t *testing.T) {
	w := openTestWAL(t, func(c *Config) { c.RetryBackoff = time.Hour; c.MaxBackoff = time.Hour })
	ctx := context.Background()
	_, _ = w.Write(ctx, testPayload{MessageID: "m1"})

	rec := &replayRecorder{}
	loop := NewRetryLoop(w, rec.replay, time.Second)
	loop.RunOnce(ctx)

	if rec.count() != 0 {
		t.Errorf("fresh entry replayed before backoff elapsed")
	}
}

func TestRetryLoop_SkipsClaimed(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()
	id, _ := w.Write(ctx, testPayload{MessageID: "m1"})
	w.TryClaim(id)

	rec := &replayRecorder{}
	loop := NewRetryLoop(w, rec.replay, time.Second)
	time.Sleep(5 * time.Millisecond)
	loop.RunOnce(ctx)

	if rec.count() != 0 {
		t.Errorf("claimed entry was replayed")
	}
}

func TestRetryLoop_FailureRecordsAttemptThenDrops(t *testing.T) {
	w := openTestWAL(t, func(c *Config) { c.MaxAttempts = 2 })
	ctx := context.Background()
	id, _ := w.Write(ctx, testPayload{MessageID: "m1"})

	rec := &replayRecorder{err: errors.New("job unavailable")}
	loop := NewRetryLoop(w, rec.replay, time.Second)

	for i := 0; i < 2; i++ {
		time.Sleep(15 * time.Millisecond)
		loop.RunOnce(ctx)
	}
	entry, err := w.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Attempts != 2 || entry.LastError != "job unavailable" {
		t.Errorf("entry = %+v", entry)
	}

	time.Sleep(15 * time.Millisecond)
	loop.RunOnce(ctx)
	if _, err := w.Get(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("entry not dropped after max attempts: %v", err)
	}
	if rec.count() != 2 {
		t.Errorf("replay calls = %d, want 2", rec.count())
	}
}

func TestRetryLoop_DropsExpired(t *testing.T) {
	w := openTestWAL(t, func(c *Config) { c.EntryTTL = 10 * time.Millisecond })
	ctx := context.Background()
	id, _ := w.Write(ctx, testPayload{MessageID: "m1"})

	rec := &replayRecorder{}
	loop := NewRetryLoop(w, rec.replay, time.Second)
	time.Sleep(20 * time.Millisecond)
	loop.RunOnce(ctx)

	if rec.count() != 0 {
		t.Errorf("expired entry was replayed")
	}
	if _, err := w.Get(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expired entry still present: %v", err)
	}
}

func TestRetryLoop_CalculateBackoff(t *testing.T) {
	w := openTestWAL(t, func(c *Config) {
		c.RetryBackoff = time.Second
		c.MaxBackoff = 10 * time.Second
	})
	loop := NewRetryLoop(w, nil, 0)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{100, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := loop.calculateBackoff(tt.attempts); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestRetryLoop_ServeStopsOnCancel(t *testing.T) {
	w := openTestWAL(t, nil)
	rec := &replayRecorder{}
	loop := NewRetryLoop(w, rec.replay, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Serve(ctx) }()

	_, _ = w.Write(context.Background(), testPayload{MessageID: "m1"})
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rec.count() == 0 {
		t.Error("Serve never replayed the entry")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
	if loop.String() != "outbox-retry-loop" {
		t.Errorf("String() = %q", loop.String())
	}
}
