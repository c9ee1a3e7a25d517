// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package conversation

import (
	"sort"

	"github.com/tomtom215/roomlink/internal/models"
)

// Aggregate groups the messages visible to viewer into one Conversation per
// conversation key.
//
// The result does not depend on the order of msgs. Conversations are
// returned sorted by key; use SortByRecent for display order.
func Aggregate(viewer models.Viewer, msgs []models.Message) []models.Conversation {
	groups := make(map[string][]*models.Message)
	for i := range msgs {
		m := &msgs[i]
		groups[m.ConversationID] = append(groups[m.ConversationID], m)
	}

	out := make([]models.Conversation, 0, len(groups))
	for key, group := range groups {
		out = append(out, buildConversation(viewer, key, group))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func buildConversation(viewer models.Viewer, key string, group []*models.Message) models.Conversation {
	// newest first
	sort.Slice(group, func(i, j int) bool { return group[j].Less(group[i]) })

	last := group[0]
	conv := models.Conversation{
		Key:         key,
		LastMessage: *last,
		Listing:     models.ListingSummary{ListingID: last.ListingID},
	}

	for _, m := range group {
		if m.IsUnreadFor(viewer.ID) {
			conv.UnreadCount++
		}
	}

	for _, m := range group {
		if m.HasListing() {
			conv.Listing = models.ListingSummary{
				ListingID: m.ListingID,
				Title:     m.ListingTitle,
				Image:     m.ListingImage,
				Price:     m.ListingPrice,
				Address:   m.ListingAddress,
			}
			break
		}
	}

	conv.Counterpart = counterpartOf(viewer, group)
	return conv
}

// counterpartOf prefers the newest message written by the other party and
// falls back to the declared recipient of the viewer's own newest message.
// group must be sorted newest first.
func counterpartOf(viewer models.Viewer, group []*models.Message) models.CounterpartSummary {
	var fromSender, fromRecipient *models.Message
	for _, m := range group {
		if !m.AuthoredBy(viewer.ID) {
			if fromSender == nil || (fromSender.SenderName == "" && m.SenderName != "") {
				fromSender = m
			}
			if fromSender.SenderName != "" {
				break
			}
			continue
		}
		if fromRecipient == nil || (fromRecipient.RecipientName == "" && m.RecipientName != "") {
			fromRecipient = m
		}
	}

	if fromSender != nil {
		return models.CounterpartSummary{
			ID:         fromSender.SenderID,
			Role:       fromSender.SenderRole,
			Name:       fromSender.SenderName,
			University: fromSender.SenderUniversity,
			Contact:    fromSender.SenderContact,
		}
	}

	m := fromRecipient
	return models.CounterpartSummary{
		ID:      m.RecipientID,
		Role:    oppositeRole(m.SenderRole),
		Name:    m.RecipientName,
		Contact: m.RecipientContact,
	}
}

func oppositeRole(role string) string {
	if role == models.RoleAgency {
		return models.RoleStudent
	}
	return models.RoleAgency
}

// SortByRecent orders conversations newest activity first, ties by key.
func SortByRecent(convs []models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i].LastMessage.CreatedAt, convs[j].LastMessage.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return convs[i].Key < convs[j].Key
	})
}

// TotalUnread sums the unread counts of convs.
func TotalUnread(convs []models.Conversation) int {
	total := 0
	for i := range convs {
		total += convs[i].UnreadCount
	}
	return total
}
