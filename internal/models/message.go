// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package models

import "time"

// Viewer roles. A conversation always has exactly one party of each role.
const (
	RoleAgency  = "agency"
	RoleStudent = "student"
)

// IsValidRole reports whether role is agency or student.
func IsValidRole(role string) bool {
	return role == RoleAgency || role == RoleStudent
}

// Viewer is the authenticated caller on whose behalf queries are scoped.
type Viewer struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAgency reports whether the viewer acts as a listing agency.
func (v Viewer) IsAgency() bool { return v.Role == RoleAgency }

// Valid reports whether the viewer carries an id and a known role.
func (v Viewer) Valid() bool { return v.ID != "" && IsValidRole(v.Role) }

// Message is one persisted row of the messages table.
//
// Body and the denormalized display fields never change after insert.
// ReadAt and RepliedAt are the only mutable columns and are only ever
// set, never cleared.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	ListingID      string `json:"listing_id"`
	StudentID      string `json:"student_id"`
	AgencyID       string `json:"agency_id"`
	SenderID       string `json:"sender_id"`
	SenderRole     string `json:"sender_role"`
	RecipientID    string `json:"recipient_id"`
	Body           string `json:"body"`

	SenderName       string `json:"sender_name,omitempty"`
	SenderContact    string `json:"sender_contact,omitempty"`
	SenderUniversity string `json:"sender_university,omitempty"`
	RecipientName    string `json:"recipient_name,omitempty"`
	RecipientContact string `json:"recipient_contact,omitempty"`

	ListingTitle   string  `json:"listing_title,omitempty"`
	ListingImage   string  `json:"listing_image,omitempty"`
	ListingPrice   float64 `json:"listing_price,omitempty"`
	ListingAddress string  `json:"listing_address,omitempty"`

	// ClientNonce is the sender-generated id used to reconcile an optimistic
	// local copy with the stored row.
	ClientNonce string `json:"client_nonce,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	RepliedAt *time.Time `json:"replied_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AuthoredBy reports whether viewerID wrote the message.
func (m *Message) AuthoredBy(viewerID string) bool {
	return m.SenderID == viewerID
}

// IsUnreadFor reports whether the message counts as unread for viewerID:
// written by the other party and not yet read.
func (m *Message) IsUnreadFor(viewerID string) bool {
	return m.SenderID != viewerID && m.ReadAt == nil
}

// HasListing reports whether the row carries listing display fields.
func (m *Message) HasListing() bool {
	return m.ListingTitle != "" || m.ListingImage != "" || m.ListingAddress != "" || m.ListingPrice != 0
}

// Less orders messages by (CreatedAt, ID).
func (m *Message) Less(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// MessageDraft is what a sender supplies. The store assigns ID, timestamps
// and the conversation key.
type MessageDraft struct {
	ListingID  string `json:"listing_id" validate:"required,max=128"`
	StudentID  string `json:"student_id" validate:"required,max=128"`
	AgencyID   string `json:"agency_id" validate:"required,max=128"`
	SenderID   string `json:"sender_id" validate:"required,max=128"`
	SenderRole string `json:"sender_role" validate:"required,oneof=agency student"`
	Body       string `json:"body" validate:"required,nonblank,max=4000"`

	// ConversationID is optional. When present it must equal the key
	// resolved from ListingID and StudentID.
	ConversationID string `json:"conversation_id,omitempty" validate:"omitempty,max=300,convkey"`

	SenderName       string `json:"sender_name,omitempty" validate:"max=200"`
	SenderContact    string `json:"sender_contact,omitempty" validate:"max=64"`
	SenderUniversity string `json:"sender_university,omitempty" validate:"max=200"`
	RecipientName    string `json:"recipient_name,omitempty" validate:"max=200"`
	RecipientContact string `json:"recipient_contact,omitempty" validate:"max=64"`

	ListingTitle   string  `json:"listing_title,omitempty" validate:"max=300"`
	ListingImage   string  `json:"listing_image,omitempty" validate:"max=2048"`
	ListingPrice   float64 `json:"listing_price,omitempty" validate:"gte=0"`
	ListingAddress string  `json:"listing_address,omitempty" validate:"max=500"`

	ClientNonce string `json:"client_nonce,omitempty" validate:"omitempty,max=64"`
}

// RecipientID returns the party on the other side of the sender.
func (d *MessageDraft) RecipientID() string {
	if d.SenderRole == RoleAgency {
		return d.StudentID
	}
	return d.AgencyID
}
