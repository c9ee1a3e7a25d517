// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package realtime

import (
	"sort"
	"time"

	"github.com/tomtom215/roomlink/internal/models"
)

// mergeRow combines two copies of the same row. read_at and replied_at are
// only ever set, so a timestamp present in either copy is kept.
func mergeRow(local, incoming models.Message) models.Message {
	out := incoming
	if out.ReadAt == nil {
		out.ReadAt = local.ReadAt
	}
	if out.RepliedAt == nil {
		out.RepliedAt = local.RepliedAt
	}
	if out.UpdatedAt.Before(local.UpdatedAt) {
		out.UpdatedAt = local.UpdatedAt
	}
	return out
}

// sameState reports whether merging incoming into local would change nothing.
func sameState(local, merged models.Message) bool {
	return timeEq(local.ReadAt, merged.ReadAt) && timeEq(local.RepliedAt, merged.RepliedAt)
}

// timeEq compares presence only; a set timestamp never changes.
func timeEq(a, b *time.Time) bool {
	return (a == nil) == (b == nil)
}

func indexOf(msgs []models.Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// insertSorted places m at its (CreatedAt, ID) position.
func insertSorted(msgs []models.Message, m models.Message) []models.Message {
	i := sort.Search(len(msgs), func(i int) bool {
		return m.Less(&msgs[i])
	})
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	return msgs
}

func removeAt(msgs []models.Message, i int) []models.Message {
	return append(msgs[:i], msgs[i+1:]...)
}

func sortMessages(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Less(&msgs[j])
	})
}

// reconcile unions local state with a fresh server read. Server rows
// replace local copies by id, keeping any timestamp only the local copy
// has. Pending optimistic rows whose nonce now has a server row are
// dropped. Local rows missing from the server read (newer events,
// unconfirmed sends) are kept.
func reconcile(local, server []models.Message, pending map[string]string, viewerID string) []models.Message {
	byID := make(map[string]models.Message, len(local)+len(server))
	for _, m := range local {
		byID[m.ID] = m
	}

	for _, m := range server {
		if existing, ok := byID[m.ID]; ok {
			byID[m.ID] = mergeRow(existing, m)
		} else {
			byID[m.ID] = m
		}
		if m.ClientNonce != "" && m.SenderID == viewerID {
			if localID, ok := pending[m.ClientNonce]; ok {
				delete(byID, localID)
				delete(pending, m.ClientNonce)
			}
		}
	}

	out := make([]models.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sortMessages(out)
	return out
}
