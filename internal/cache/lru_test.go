// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cur = f.cur.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{cur: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU[int](3, time.Minute)

	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)

	// touch a so b becomes least recently used
	c.Get("a")
	c.Add("d", 4)

	if _, found := c.Get("b"); found {
		t.Error("Expected 'b' to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, found := c.Get(key); !found {
			t.Errorf("Expected %q to be present", key)
		}
	}
	if v, _ := c.Get("d"); v != 4 {
		t.Errorf("Get(d) = %d, want 4", v)
	}
}

func TestLRU_TTLExpiration(t *testing.T) {
	clock := newClock()
	c := NewLRU[string](10, time.Second)
	c.now = clock.Now

	c.Add("a", "x")
	c.Add("b", "y")
	if !c.Contains("a") {
		t.Fatal("Expected 'a' to be present")
	}

	clock.Advance(2 * time.Second)
	if _, found := c.Get("a"); found {
		t.Error("Expected 'a' to be expired")
	}
	if removed := c.CleanupExpired(); removed != 1 {
		t.Errorf("CleanupExpired() = %d, want 1", removed)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLRU_RemoveAndStats(t *testing.T) {
	c := NewLRU[int](0, 0)

	c.Add("k", 1)
	if !c.Remove("k") {
		t.Error("Remove(k) = false, want true")
	}
	if c.Remove("k") {
		t.Error("second Remove(k) = true, want false")
	}

	c.Get("k")
	c.Add("k", 2)
	c.Get("k")
	hits, misses, size := c.Stats()
	if hits != 1 || misses != 1 || size != 1 {
		t.Errorf("Stats() = (%d, %d, %d), want (1, 1, 1)", hits, misses, size)
	}
}

func TestDedup_Window(t *testing.T) {
	clock := newClock()
	d := NewDedup(2, time.Minute)
	d.lru.now = clock.Now

	if d.IsDuplicate("m1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("m1") {
		t.Fatal("second sighting not reported as duplicate")
	}

	d.Forget("m1")
	if d.IsDuplicate("m1") {
		t.Error("forgotten key reported as duplicate")
	}

	clock.Advance(2 * time.Minute)
	if d.IsDuplicate("m1") {
		t.Error("expired key reported as duplicate")
	}

	d.IsDuplicate("m2")
	d.IsDuplicate("m3")
	if d.Len() != 2 {
		t.Errorf("Len() = %d, want capacity 2", d.Len())
	}
}

func TestDedup_ConcurrentFirstSighting(t *testing.T) {
	d := NewDedup(1000, time.Minute)

	var firsts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if !d.IsDuplicate(fmt.Sprintf("key-%d", j)) {
					firsts.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := firsts.Load(); got != 10 {
		t.Errorf("first sightings = %d, want 10", got)
	}
}
