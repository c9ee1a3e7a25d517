// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package resilience

import (
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestNewCircuitBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(BreakerConfig{
		Name:             "test-trip",
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		if err := Execute(cb, func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want boom", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := Execute(cb, func() error {
		called = true
		return nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if called {
		t.Error("open breaker ran the function")
	}
}

func TestExecute_NilBreaker(t *testing.T) {
	if err := Execute(nil, func() error { return nil }); err != nil {
		t.Errorf("Execute(nil) = %v", err)
	}
}
