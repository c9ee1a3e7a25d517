// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package eventbus

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomlink/internal/realtime"
)

const (
	listingTopicPrefix   = "messages.listing."
	recipientTopicPrefix = "messages.recipient."
	jobTopicPrefix       = "jobs."
)

// ListingTopic is the topic carrying row changes of one listing.
//
// Characters that are not safe in a NATS subject token are replaced by
// '_'. Two listings may then share a topic, which only widens delivery;
// receivers filter by conversation key.
func ListingTopic(listingID string) string {
	return listingTopicPrefix + subjectToken(listingID)
}

// RecipientTopic is the topic carrying new messages addressed to one
// viewer. Sessions watch it to refresh their unread badge.
func RecipientTopic(recipientID string) string {
	return recipientTopicPrefix + subjectToken(recipientID)
}

// JobTopic is the topic a notification job is published on.
func JobTopic(jobName string) string {
	return jobTopicPrefix + subjectToken(jobName)
}

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// eventID identifies one version of a row. Redeliveries of the same
// change share it; a later update of the same row does not.
func eventID(ev realtime.Event) string {
	return fmt.Sprintf("%s:%s:%d", ev.Message.ID, ev.Kind, ev.Message.UpdatedAt.UnixNano())
}

func encodeEvent(ev realtime.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (realtime.Event, error) {
	var ev realtime.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Message.ID == "" || ev.Message.ConversationID == "" {
		return ev, fmt.Errorf("unmarshal event: missing message id or conversation")
	}
	return ev, nil
}
