// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type testPayload struct {
	MessageID string `json:"message_id"`
}

func openTestWAL(t *testing.T, mutate func(*Config)) *BadgerWAL {
	t.Helper()
	cfg := Config{
		InMemory:      true,
		RetryInterval: 50 * time.Millisecond,
		RetryBackoff:  time.Millisecond,
		MaxBackoff:    10 * time.Millisecond,
		MaxAttempts:   3,
		EntryTTL:      time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"in memory without path", Config{InMemory: true}, false},
		{"path", Config{Path: "/data/outbox"}, false},
		{"no path", Config{}, true},
		{"negative ttl", Config{InMemory: true, EntryTTL: -time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{InMemory: true, GCRatio: 1.5}
	cfg.applyDefaults()

	def := DefaultConfig("")
	if cfg.RetryInterval != def.RetryInterval || cfg.MaxAttempts != def.MaxAttempts {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.GCRatio != def.GCRatio {
		t.Errorf("GCRatio = %v, want %v", cfg.GCRatio, def.GCRatio)
	}
}

func TestWAL_WriteGetConfirm(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()

	id, err := w.Write(ctx, testPayload{MessageID: "m1"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	entry, err := w.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var got testPayload
	if err := entry.UnmarshalPayload(&got); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if got.MessageID != "m1" {
		t.Errorf("payload = %+v", got)
	}

	if err := w.Confirm(ctx, id); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := w.Get(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Get after confirm: err = %v, want ErrEntryNotFound", err)
	}
	if err := w.Confirm(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Confirm: err = %v, want ErrEntryNotFound", err)
	}

	stats := w.Stats()
	if stats.TotalWrites != 1 || stats.TotalConfirms != 1 || stats.PendingCount != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWAL_InvalidArguments(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()

	if _, err := w.Write(ctx, nil); !errors.Is(err, ErrNilPayload) {
		t.Errorf("Write(nil) err = %v", err)
	}
	if err := w.Confirm(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("Confirm(\"\") err = %v", err)
	}
	if _, err := w.Get(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("Get(\"\") err = %v", err)
	}
	if err := w.RecordAttempt(ctx, "missing", "boom"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("RecordAttempt(missing) err = %v", err)
	}
}

func TestWAL_GetPendingOrdered(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()

	var ids []string
	for _, m := range []string{"m1", "m2", "m3"} {
		id, err := w.Write(ctx, testPayload{MessageID: m})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("len(pending) = %d, want 3", len(pending))
	}
	for i, e := range pending {
		if e.ID != ids[i] {
			t.Errorf("pending[%d] = %s, want %s", i, e.ID, ids[i])
		}
	}
	if got := w.Stats().PendingCount; got != 3 {
		t.Errorf("PendingCount = %d, want 3", got)
	}
}

func TestWAL_RecordAttempt(t *testing.T) {
	w := openTestWAL(t, nil)
	ctx := context.Background()

	id, _ := w.Write(ctx, testPayload{MessageID: "m1"})
	if err := w.RecordAttempt(ctx, id, "job unavailable"); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	entry, err := w.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entry.Attempts != 1 || entry.LastError != "job unavailable" || entry.LastAttemptAt.IsZero() {
		t.Errorf("entry = %+v", entry)
	}
	if w.Stats().TotalRetries != 1 {
		t.Errorf("TotalRetries = %d, want 1", w.Stats().TotalRetries)
	}
}

func TestWAL_Claim(t *testing.T) {
	w := openTestWAL(t, nil)

	if !w.TryClaim("e1") {
		t.Fatal("first claim should succeed")
	}
	if w.TryClaim("e1") {
		t.Fatal("second claim should fail")
	}
	w.Release("e1")
	if !w.TryClaim("e1") {
		t.Fatal("claim after release should succeed")
	}
}

func TestWAL_Closed(t *testing.T) {
	w := openTestWAL(t, nil)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	ctx := context.Background()
	if _, err := w.Write(ctx, testPayload{}); !errors.Is(err, ErrWALClosed) {
		t.Errorf("Write after close: %v", err)
	}
	if _, err := w.GetPending(ctx); !errors.Is(err, ErrWALClosed) {
		t.Errorf("GetPending after close: %v", err)
	}
	if err := w.RunGC(); !errors.Is(err, ErrWALClosed) {
		t.Errorf("RunGC after close: %v", err)
	}
}

func TestWAL_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox")
	ctx := context.Background()

	w, err := Open(Config{Path: path, EntryTTL: time.Hour})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := w.Write(ctx, testPayload{MessageID: "m1"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w, err = Open(Config{Path: path, EntryTTL: time.Hour})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w.Close()

	pending, err := w.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending after reopen = %+v", pending)
	}
	if err := w.RunGC(); err != nil {
		t.Errorf("RunGC: %v", err)
	}
}
