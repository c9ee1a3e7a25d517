// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordDBQuery_ErrorTruncation(t *testing.T) {
	long := errors.New(strings.Repeat("x", 80))
	RecordDBQuery("SELECT", "messages", time.Millisecond, long)

	got := testutil.ToFloat64(DBQueryErrors.WithLabelValues("SELECT", "messages", strings.Repeat("x", 50)))
	if got < 1 {
		t.Errorf("expected truncated error label to be counted, got %v", got)
	}
}

func TestRecordMessageSent(t *testing.T) {
	before := testutil.ToFloat64(MessagesSent.WithLabelValues("student"))
	RecordMessageSent("student")
	RecordMessageSent("student")
	after := testutil.ToFloat64(MessagesSent.WithLabelValues("student"))

	if after-before != 2 {
		t.Errorf("expected 2 increments, got %v", after-before)
	}
}

func TestRecordReadMark(t *testing.T) {
	marks := testutil.ToFloat64(ReadMarks)
	rows := testutil.ToFloat64(MessagesMarkedRead)

	RecordReadMark(0)
	RecordReadMark(3)

	if d := testutil.ToFloat64(ReadMarks) - marks; d != 1 {
		t.Errorf("read marks delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(MessagesMarkedRead) - rows; d != 3 {
		t.Errorf("rows delta = %v, want 3", d)
	}
}

func TestTrackOpenThread(t *testing.T) {
	before := testutil.ToFloat64(OpenThreads)
	TrackOpenThread(true)
	TrackOpenThread(true)
	TrackOpenThread(false)

	if d := testutil.ToFloat64(OpenThreads) - before; d != 1 {
		t.Errorf("open threads delta = %v, want 1", d)
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}

	for _, tt := range tests {
		RecordCircuitBreakerTransition("webhook", "closed", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("webhook")); got != tt.want {
			t.Errorf("state after %s = %v, want %v", tt.to, got, tt.want)
		}
	}
}

func TestRecordNotificationObservesDuration(t *testing.T) {
	RecordNotification("new-message", "success", 20*time.Millisecond)

	h, ok := NotificationDuration.WithLabelValues("new-message").(interface{ Write(*dto.Metric) error })
	if !ok {
		t.Fatal("histogram does not expose Write")
	}
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected at least one observation")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/conversations", "200"))
	RecordAPIRequest("GET", "/api/v1/conversations", 200, 5*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/conversations", "200"))

	if after-before != 1 {
		t.Errorf("expected 1 request recorded, got %v", after-before)
	}
}
