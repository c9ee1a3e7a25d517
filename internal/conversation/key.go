// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package conversation derives conversation identity and threads from
// message rows.
//
// A conversation is the set of messages between one listing and one
// student. Its key is computed by Resolve, and the same definition is
// rendered as a DuckDB macro by KeyMacroSQL so that the database can reject
// rows whose conversation_id does not match.
package conversation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/roomlink/internal/models"
)

const (
	// keyVersion prefixes every key so the format can change without
	// colliding with old rows.
	keyVersion = "c1"
	keySep     = ":"

	// MacroName is the DuckDB macro that mirrors Resolve.
	MacroName = "conversation_key"
)

// Resolve returns the conversation key for a listing and student.
//
// The key is "c1:<byte length of listingID>:<listingID>:<studentID>". The
// length prefix makes the encoding injective for arbitrary ids, including
// ids that contain the separator. Both parties compute the same key from
// the same pair regardless of who authored a message.
func Resolve(listingID, studentID string) string {
	var b strings.Builder
	b.Grow(len(keyVersion) + len(listingID) + len(studentID) + 8)
	b.WriteString(keyVersion)
	b.WriteString(keySep)
	b.WriteString(strconv.Itoa(len(listingID)))
	b.WriteString(keySep)
	b.WriteString(listingID)
	b.WriteString(keySep)
	b.WriteString(studentID)
	return b.String()
}

// ResolveChecked is Resolve for untrusted input: both ids must be present.
func ResolveChecked(listingID, studentID string) (string, error) {
	if strings.TrimSpace(listingID) == "" {
		return "", models.NewValidationError("listing_id", "is required to resolve a conversation")
	}
	if strings.TrimSpace(studentID) == "" {
		return "", models.NewValidationError("student_id", "is required to resolve a conversation")
	}
	return Resolve(listingID, studentID), nil
}

// ParseKey splits a key produced by Resolve back into its ids.
func ParseKey(key string) (listingID, studentID string, err error) {
	rest, ok := strings.CutPrefix(key, keyVersion+keySep)
	if !ok {
		return "", "", models.NewValidationError("conversation_id", "unknown key format")
	}

	lenStr, rest, ok := strings.Cut(rest, keySep)
	if !ok {
		return "", "", models.NewValidationError("conversation_id", "missing length prefix")
	}
	n, convErr := strconv.Atoi(lenStr)
	if convErr != nil || n <= 0 || strconv.Itoa(n) != lenStr {
		return "", "", models.NewValidationError("conversation_id", "invalid length prefix")
	}
	if len(rest) < n+2 || rest[n:n+1] != keySep {
		return "", "", models.NewValidationError("conversation_id", "truncated key")
	}

	return rest[:n], rest[n+1:], nil
}

// Matches reports whether key is the conversation of the given pair.
func Matches(key, listingID, studentID string) bool {
	return key == Resolve(listingID, studentID)
}

// KeyExprSQL renders Resolve as a DuckDB expression over two column or
// parameter names. strlen counts bytes, matching len in Go.
func KeyExprSQL(listingExpr, studentExpr string) string {
	return fmt.Sprintf("'%s%s' || CAST(strlen(%s) AS VARCHAR) || '%s' || %s || '%s' || %s",
		keyVersion, keySep, listingExpr, keySep, listingExpr, keySep, studentExpr)
}

// KeyMacroSQL renders the CREATE MACRO statement equivalent to Resolve.
func KeyMacroSQL() string {
	return fmt.Sprintf("CREATE OR REPLACE MACRO %s(listing_id, student_id) AS %s",
		MacroName, KeyExprSQL("listing_id", "student_id"))
}
