// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package query builds parameterized WHERE clauses for the message store
// and the audit trail.
package query

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder collects AND-joined conditions and their bind arguments.
//
//	wb := query.NewWhereBuilder()
//	wb.AddEquals("agency_id", viewerID)
//	wb.AddSince("created_at", since)
//	where, args := wb.BuildWithPrefix()
//	// WHERE agency_id = ? AND created_at >= ?
//
// Column names are written into the SQL verbatim and must never come from
// user input.
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates an empty builder.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw condition with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddEquals adds "column = ?". Empty values are skipped.
func (wb *WhereBuilder) AddEquals(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" = ?", value)
}

// AddNotEquals adds "column <> ?". Empty values are skipped.
func (wb *WhereBuilder) AddNotEquals(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddClause(column+" <> ?", value)
}

// AddIn adds "column IN (?, ...)". An empty slice is skipped.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		wb.args = append(wb.args, v)
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

// AddSince adds "column >= ?". A nil time is skipped.
func (wb *WhereBuilder) AddSince(column string, since *time.Time) *WhereBuilder {
	if since == nil {
		return wb
	}
	return wb.AddClause(column+" >= ?", *since)
}

// AddUntil adds "column <= ?". A nil time is skipped.
func (wb *WhereBuilder) AddUntil(column string, until *time.Time) *WhereBuilder {
	if until == nil {
		return wb
	}
	return wb.AddClause(column+" <= ?", *until)
}

// AddIsNull adds "column IS NULL".
func (wb *WhereBuilder) AddIsNull(column string) *WhereBuilder {
	return wb.AddClause(column + " IS NULL")
}

// Build joins the clauses with AND. An empty builder yields "1=1".
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix is Build with a leading "WHERE ".
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

// Count returns the number of clauses.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty reports whether no clauses were added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}
