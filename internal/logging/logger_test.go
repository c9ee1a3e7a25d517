// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if cfg.Caller {
		t.Error("expected default caller to be false")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

// The tests below swap the global logger, so they do not run in parallel.

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("conversation_id", "c1:1:L:S").Msg("thread opened")

	out := buf.String()
	if !strings.Contains(out, "thread opened") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"conversation_id":"c1:1:L:S"`) {
		t.Errorf("expected field in output, got: %s", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("expected level in output, got: %s", out)
	}
}

func TestCtxAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	ctx := ContextWithCorrelationID(context.Background(), "abcd1234")
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithViewerID(ctx, "agency-7")

	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"abcd1234"`, `"request_id":"req-1"`, `"viewer_id":"agency-7"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestCtxWithoutIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	Ctx(context.Background()).Info().Msg("plain")

	if strings.Contains(buf.String(), "correlation_id") {
		t.Errorf("unexpected correlation_id in output: %s", buf.String())
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 character id, got %q", a)
	}
	if a == b {
		t.Error("expected distinct correlation ids")
	}
	if CorrelationIDFromContext(ContextWithNewCorrelationID(context.Background())) == "" {
		t.Error("expected generated id in context")
	}
}

func TestSlogLoggerRoutesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer Init(DefaultConfig())

	logger := NewSlogLogger().With("service", "hub").WithGroup("tree")
	logger.Warn("service restarted", slog.Int("attempt", 2), slog.Bool("backoff", true))

	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"tree.service":"hub"`, `"tree.attempt":2`, `"tree.backoff":true`, "service restarted"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestSlogEnabledHonorsGlobalLevel(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	defer Init(DefaultConfig())

	h := NewSlogHandler()
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestWatermillLogger(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer Init(DefaultConfig())

	var adapter watermill.LoggerAdapter = NewWatermillLoggerFrom(NewTestLogger(&buf))
	adapter = adapter.With(watermill.LogFields{"topic": "messages.listing.L1"})
	adapter.Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 3})

	out := buf.String()
	for _, want := range []string{`"topic":"messages.listing.L1"`, `"attempt":3`, `"error":"boom"`, "publish failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}

	buf.Reset()
	adapter.Trace("tick", nil)
	if !strings.Contains(buf.String(), `"level":"trace"`) {
		t.Errorf("expected trace line, got: %s", buf.String())
	}
}
