// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package readstate marks a conversation read while it is open and tells
// interested observers that unread counts may have changed.
package readstate

import "sync"

// Signal is an unread-changed notification shared by the views of one
// session. It carries no value: observers re-query the aggregator.
// Notifications coalesce, so a slow observer sees at least one wake-up
// after the last Notify, not one per call.
type Signal struct {
	mu     sync.Mutex
	subs   map[int]chan struct{}
	next   int
	closed bool
}

// NewSignal creates a signal with no observers.
func NewSignal() *Signal {
	return &Signal{subs: make(map[int]chan struct{})}
}

// Subscribe registers an observer. The returned func unregisters it and
// closes the channel.
func (s *Signal) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Notify wakes every observer without blocking.
func (s *Signal) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close closes every observer channel. Later Subscribe calls return a
// closed channel.
func (s *Signal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
