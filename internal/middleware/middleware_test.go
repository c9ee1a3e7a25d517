// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"upstream id kept", "req-123.abc_DEF", true},
		{"unsafe id replaced", "bad id\nwith newline", false},
		{"overlong id replaced", strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx, fromLogging string
			handler := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				fromCtx = GetRequestID(r.Context())
				fromLogging = logging.RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			header := rec.Header().Get(RequestIDHeader)
			if header == "" || header != fromCtx || header != fromLogging {
				t.Fatalf("header %q, context %q, logging %q should match and be set", header, fromCtx, fromLogging)
			}
			if tt.keep && header != tt.incoming {
				t.Errorf("request id = %q, want upstream %q", header, tt.incoming)
			}
			if !tt.keep && header == tt.incoming {
				t.Errorf("request id %q should have been replaced", header)
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/v1/conversations/{key}/messages", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/implicit", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	pattern := "/api/v1/conversations/{key}/messages"
	before := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, pattern, "418"))
	beforeImplicit := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/implicit", "200"))

	for _, path := range []string{"/api/v1/conversations/c1:1:L:S/messages", "/api/v1/conversations/c1:1:M:S/messages"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d", rec.Code)
		}
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/implicit", nil))

	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, pattern, "418")) - before; got != 2 {
		t.Errorf("requests for pattern = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/implicit", "200")) - beforeImplicit; got != 1 {
		t.Errorf("implicit 200 requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.APIActiveRequests); got != 0 {
		t.Errorf("active requests = %v, want 0", got)
	}
}
