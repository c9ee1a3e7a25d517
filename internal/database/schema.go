// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/roomlink/internal/conversation"
)

func (db *DB) createSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func schemaQueries() []string {
	return []string{
		conversation.KeyMacroSQL(),

		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR PRIMARY KEY,
			conversation_id VARCHAR NOT NULL,
			listing_id VARCHAR NOT NULL,
			student_id VARCHAR NOT NULL,
			agency_id VARCHAR NOT NULL,
			sender_id VARCHAR NOT NULL,
			sender_role VARCHAR NOT NULL CHECK (sender_role IN ('agency', 'student')),
			recipient_id VARCHAR NOT NULL,
			body VARCHAR NOT NULL CHECK (length(trim(body)) > 0),
			sender_name VARCHAR NOT NULL DEFAULT '',
			sender_contact VARCHAR NOT NULL DEFAULT '',
			sender_university VARCHAR NOT NULL DEFAULT '',
			recipient_name VARCHAR NOT NULL DEFAULT '',
			recipient_contact VARCHAR NOT NULL DEFAULT '',
			listing_title VARCHAR NOT NULL DEFAULT '',
			listing_image VARCHAR NOT NULL DEFAULT '',
			listing_price DOUBLE NOT NULL DEFAULT 0,
			listing_address VARCHAR NOT NULL DEFAULT '',
			client_nonce VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			read_at TIMESTAMP,
			replied_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL,
			CHECK (conversation_id = ` + conversation.KeyExprSQL("listing_id", "student_id") + `),
			CHECK (sender_id = CASE WHEN sender_role = 'agency' THEN agency_id ELSE student_id END),
			CHECK (recipient_id = CASE WHEN sender_role = 'agency' THEN student_id ELSE agency_id END)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_agency ON messages(agency_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_student ON messages(student_id)`,
	}
}
