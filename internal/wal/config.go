// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"errors"
	"time"
)

// Config configures the outbox.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Entries do not survive a restart.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// RetryInterval is the period of the replay loop.
	RetryInterval time.Duration

	// RetryBackoff is the base of the per-entry exponential backoff.
	RetryBackoff time.Duration

	// MaxBackoff caps the per-entry backoff.
	MaxBackoff time.Duration

	// MaxAttempts drops an entry after this many failed attempts.
	MaxAttempts int

	// EntryTTL expires entries in BadgerDB and drops older ones on replay.
	EntryTTL time.Duration

	// GCRatio is passed to RunValueLogGC.
	GCRatio float64

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration
}

// DefaultConfig returns production defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		SyncWrites:    true,
		RetryInterval: 30 * time.Second,
		RetryBackoff:  5 * time.Second,
		MaxBackoff:    5 * time.Minute,
		MaxAttempts:   20,
		EntryTTL:      24 * time.Hour,
		GCRatio:       0.5,
		CloseTimeout:  30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig(c.Path)
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		c.GCRatio = def.GCRatio
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = def.CloseTimeout
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return errors.New("wal path is required unless running in memory")
	}
	if c.EntryTTL < 0 {
		return errors.New("wal entry TTL must not be negative")
	}
	return nil
}
