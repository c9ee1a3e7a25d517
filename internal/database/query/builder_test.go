// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package query

import (
	"testing"
	"time"
)

func TestWhereBuilder_Empty(t *testing.T) {
	wb := NewWhereBuilder()

	if !wb.IsEmpty() {
		t.Error("Expected new builder to be empty")
	}

	whereClause, args := wb.Build()
	if whereClause != "1=1" {
		t.Errorf("Expected '1=1' for empty builder, got %q", whereClause)
	}
	if len(args) != 0 {
		t.Errorf("Expected 0 args, got %d", len(args))
	}
}

func TestWhereBuilder_Conditions(t *testing.T) {
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		build     func(*WhereBuilder)
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "equals",
			build:     func(wb *WhereBuilder) { wb.AddEquals("agency_id", "a1") },
			wantWhere: "agency_id = ?",
			wantArgs:  1,
		},
		{
			name:      "empty equals skipped",
			build:     func(wb *WhereBuilder) { wb.AddEquals("listing_id", "") },
			wantWhere: "1=1",
			wantArgs:  0,
		},
		{
			name: "not equals and null",
			build: func(wb *WhereBuilder) {
				wb.AddNotEquals("sender_id", "s1").AddIsNull("read_at")
			},
			wantWhere: "sender_id <> ? AND read_at IS NULL",
			wantArgs:  1,
		},
		{
			name:      "in",
			build:     func(wb *WhereBuilder) { wb.AddIn("listing_id", []string{"l1", "l2", "l3"}) },
			wantWhere: "listing_id IN (?, ?, ?)",
			wantArgs:  3,
		},
		{
			name:      "empty in skipped",
			build:     func(wb *WhereBuilder) { wb.AddIn("listing_id", nil) },
			wantWhere: "1=1",
			wantArgs:  0,
		},
		{
			name: "time range",
			build: func(wb *WhereBuilder) {
				wb.AddSince("created_at", &since).AddUntil("created_at", nil)
			},
			wantWhere: "created_at >= ?",
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			tt.build(wb)

			whereClause, args := wb.Build()
			if whereClause != tt.wantWhere {
				t.Errorf("Build() where = %q, want %q", whereClause, tt.wantWhere)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("Build() args = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestWhereBuilder_BuildWithPrefix(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddEquals("conversation_id", "c1:2:l1:s1")

	whereClause, args := wb.BuildWithPrefix()
	if whereClause != "WHERE conversation_id = ?" {
		t.Errorf("BuildWithPrefix() = %q", whereClause)
	}
	if len(args) != 1 || args[0] != "c1:2:l1:s1" {
		t.Errorf("BuildWithPrefix() args = %v", args)
	}
	if wb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", wb.Count())
	}
}
