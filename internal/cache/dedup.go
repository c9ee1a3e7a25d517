// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package cache

import "time"

// Dedup remembers keys for a bounded window.
//
//	seen := cache.NewDedup(10000, 5*time.Minute)
//	if seen.IsDuplicate(msg.UUID) {
//	    return nil
//	}
type Dedup struct {
	lru *LRU[time.Time]
}

// NewDedup creates a window of at most capacity keys, each kept for ttl.
func NewDedup(capacity int, ttl time.Duration) *Dedup {
	return &Dedup{lru: NewLRU[time.Time](capacity, ttl)}
}

// IsDuplicate reports whether key was recorded within the window. A key
// that was not seen is recorded as a side effect, so concurrent callers
// racing on the same key see exactly one false.
func (d *Dedup) IsDuplicate(key string) bool {
	c := d.lru
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, ok := c.items[key]; ok {
		if !now.After(entry.expiresAt) {
			c.moveToFront(entry)
			c.hits++
			return true
		}
		c.removeEntry(entry)
	}

	c.addLocked(key, now)
	c.misses++
	return false
}

// Forget drops key so that the next IsDuplicate for it returns false.
func (d *Dedup) Forget(key string) {
	d.lru.Remove(key)
}

// Len returns the number of remembered keys.
func (d *Dedup) Len() int {
	return d.lru.Len()
}

// Cleanup drops expired keys and returns how many were removed.
func (d *Dedup) Cleanup() int {
	return d.lru.CleanupExpired()
}
