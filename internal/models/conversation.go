// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package models

// ListingSummary is the listing display projection carried on message rows.
type ListingSummary struct {
	ListingID string  `json:"listing_id"`
	Title     string  `json:"title,omitempty"`
	Image     string  `json:"image,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// CounterpartSummary describes the other party of a conversation from the
// viewer's side.
type CounterpartSummary struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Name       string `json:"name,omitempty"`
	University string `json:"university,omitempty"`
	Contact    string `json:"contact,omitempty"`
}

// Conversation is derived from messages on every aggregation pass and is
// never stored.
type Conversation struct {
	Key         string             `json:"key"`
	Listing     ListingSummary     `json:"listing"`
	Counterpart CounterpartSummary `json:"counterpart"`
	LastMessage Message            `json:"last_message"`
	UnreadCount int                `json:"unread_count"`
}

// UnreadSummary is the badge payload.
type UnreadSummary struct {
	Unread int `json:"unread"`
}
