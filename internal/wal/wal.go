// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/roomlink/internal/logging"
)

// Errors returned by BadgerWAL.
var (
	ErrWALClosed     = errors.New("wal is closed")
	ErrNilPayload    = errors.New("wal payload cannot be nil")
	ErrEmptyEntryID  = errors.New("wal entry ID cannot be empty")
	ErrEntryNotFound = errors.New("wal entry not found")
)

const prefixPending = "pending:"

// Entry is one unit of outstanding work.
type Entry struct {
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
}

// UnmarshalPayload decodes the payload into v.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Stats are process-lifetime counters plus the current pending count.
type Stats struct {
	PendingCount  int64
	TotalWrites   int64
	TotalConfirms int64
	TotalRetries  int64
}

// BadgerWAL stores entries in BadgerDB.
//
// processing tracks entries claimed in this process so the dispatcher and
// the retry loop never run the same entry at once.
type BadgerWAL struct {
	db     *badger.DB
	config Config

	totalWrites   atomic.Int64
	totalConfirms atomic.Int64
	totalRetries  atomic.Int64

	mu     sync.RWMutex
	closed bool

	processing sync.Map
}

// Open opens (or creates) the outbox.
func Open(cfg Config) (*BadgerWAL, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wal config: %w", err)
	}
	cfg.applyDefaults()

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
		opts.Compression = options.Snappy
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Outbox opened")

	return &BadgerWAL{db: db, config: cfg}, nil
}

func (w *BadgerWAL) checkOpen() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWALClosed
	}
	return nil
}

// Config returns the effective configuration.
func (w *BadgerWAL) Config() Config {
	return w.config
}

// Write persists payload as a new pending entry and returns its id.
func (w *BadgerWAL) Write(ctx context.Context, payload interface{}) (string, error) {
	start := time.Now()
	defer func() {
		walWriteLatency.Observe(time.Since(start).Seconds())
	}()

	if err := w.checkOpen(); err != nil {
		return "", err
	}
	if payload == nil {
		return "", ErrNilPayload
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := w.put(entry); err != nil {
		return "", err
	}

	w.totalWrites.Add(1)
	walWritesTotal.Inc()
	return entry.ID, nil
}

func (w *BadgerWAL) put(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	err = w.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if ttl := w.remainingTTL(entry); ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write to BadgerDB: %w", err)
	}
	return nil
}

// remainingTTL keeps the expiry anchored at CreatedAt across rewrites.
func (w *BadgerWAL) remainingTTL(entry *Entry) time.Duration {
	if w.config.EntryTTL <= 0 {
		return 0
	}
	ttl := w.config.EntryTTL - time.Since(entry.CreatedAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// Confirm removes a completed entry.
func (w *BadgerWAL) Confirm(ctx context.Context, entryID string) error {
	if err := w.Drop(ctx, entryID); err != nil {
		return err
	}
	w.totalConfirms.Add(1)
	walConfirmsTotal.Inc()
	return nil
}

// Drop removes an entry without counting it as confirmed.
func (w *BadgerWAL) Drop(ctx context.Context, entryID string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(prefixPending + entryID)
	return w.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Get loads one pending entry.
func (w *BadgerWAL) Get(ctx context.Context, entryID string) (*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if entryID == "" {
		return nil, ErrEmptyEntryID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entry Entry
	err := w.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixPending + entryID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetPending returns every pending entry, oldest first.
func (w *BadgerWAL) GetPending(ctx context.Context) ([]*Entry, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPending)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping corrupt outbox entry")
					return nil
				}
				entries = append(entries, &entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read pending entries: %w", err)
	}

	sortByCreated(entries)
	return entries, nil
}

func sortByCreated(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// RecordAttempt stores a failed attempt on a pending entry.
func (w *BadgerWAL) RecordAttempt(ctx context.Context, entryID, lastError string) error {
	entry, err := w.Get(ctx, entryID)
	if err != nil {
		return err
	}
	entry.Attempts++
	entry.LastAttemptAt = time.Now().UTC()
	entry.LastError = lastError

	if err := w.put(entry); err != nil {
		return err
	}
	w.totalRetries.Add(1)
	return nil
}

// TryClaim marks an entry as being processed in this process. It returns
// false when the entry is already claimed.
func (w *BadgerWAL) TryClaim(entryID string) bool {
	_, loaded := w.processing.LoadOrStore(entryID, time.Now())
	return !loaded
}

// Release ends a claim taken with TryClaim.
func (w *BadgerWAL) Release(entryID string) {
	w.processing.Delete(entryID)
}

// Stats returns counters and the current pending count.
func (w *BadgerWAL) Stats() Stats {
	stats := Stats{
		TotalWrites:   w.totalWrites.Load(),
		TotalConfirms: w.totalConfirms.Load(),
		TotalRetries:  w.totalRetries.Load(),
	}
	if w.checkOpen() != nil {
		return stats
	}

	_ = w.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPending)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.PendingCount++
		}
		return nil
	})
	return stats
}

// RunGC reclaims value log space until BadgerDB reports nothing to rewrite.
func (w *BadgerWAL) RunGC() error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if w.config.InMemory {
		return nil
	}
	for {
		err := w.db.RunValueLogGC(w.config.GCRatio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes BadgerDB, giving up after CloseTimeout.
func (w *BadgerWAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- w.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Outbox closed")
		return nil
	case <-time.After(w.config.CloseTimeout):
		return fmt.Errorf("badgerdb close timeout after %v", w.config.CloseTimeout)
	}
}
