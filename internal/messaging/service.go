// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package messaging is the send and read path shared by the REST API and
// the websocket gateway.
//
// A send is validated, stored, stamped as the first agency reply where
// that applies, published to open views and handed to the notification
// dispatcher. Only the store write can fail the send; publishing and
// dispatch failures are logged because the row is already durable and
// views recover missed changes when they resync.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/realtime"
	"github.com/tomtom215/roomlink/internal/validation"
)

// Store is the subset of database.DB the service uses.
type Store interface {
	InsertMessage(ctx context.Context, viewer models.Viewer, draft *models.MessageDraft) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	ListForViewer(ctx context.Context, viewer models.Viewer) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, before time.Time) ([]models.Message, error)
	MarkFirstReplied(ctx context.Context, conversationID, agencyID string) (*models.Message, error)
	ConversationParties(ctx context.Context, conversationID string) (studentID, agencyID string, err error)
}

// ChangePublisher fans row changes out to open views.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev realtime.Event) error
}

// Notifier triggers the new-message notification job.
type Notifier interface {
	Dispatch(messageID string)
}

// Service implements the messaging operations for an authenticated viewer.
type Service struct {
	store      Store
	publisher  ChangePublisher
	notifier   Notifier
	aggregator *conversation.Aggregator
}

// NewService creates a Service. publisher and notifier may be nil.
func NewService(store Store, publisher ChangePublisher, notifier Notifier) *Service {
	return &Service{
		store:      store,
		publisher:  publisher,
		notifier:   notifier,
		aggregator: conversation.NewAggregator(store),
	}
}

// Send stores draft on behalf of viewer and returns the stored row.
//
// Validation failures wrap both models.ErrValidation and the
// *validation.RequestValidationError describing the fields.
func (s *Service) Send(ctx context.Context, viewer models.Viewer, draft *models.MessageDraft) (*models.Message, error) {
	if draft == nil {
		return nil, models.NewValidationError("draft", "is required")
	}
	if verr := validation.ValidateStruct(draft); verr != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, verr)
	}

	stored, err := s.store.InsertMessage(ctx, viewer, draft)
	if err != nil {
		return nil, err
	}

	log := logging.Ctx(ctx)
	log.Debug().Str("message_id", stored.ID).Str("conversation_id", stored.ConversationID).Msg("Message stored")

	if stored.SenderRole == models.RoleAgency {
		replied, err := s.store.MarkFirstReplied(ctx, stored.ConversationID, stored.AgencyID)
		if err != nil {
			log.Warn().Err(err).Str("conversation_id", stored.ConversationID).Msg("Failed to mark first reply")
		} else if replied != nil {
			s.publish(ctx, realtime.EventUpdate, *replied)
		}
	}

	s.publish(ctx, realtime.EventInsert, *stored)

	if s.notifier != nil {
		s.notifier.Dispatch(stored.ID)
	}
	return stored, nil
}

// Conversations returns the viewer's conversations, newest first.
func (s *Service) Conversations(ctx context.Context, viewer models.Viewer) ([]models.Conversation, error) {
	return s.aggregator.List(ctx, viewer)
}

// UnreadCount returns the viewer's badge count.
func (s *Service) UnreadCount(ctx context.Context, viewer models.Viewer) (int, error) {
	return s.aggregator.TotalUnread(ctx, viewer)
}

// Authorize checks that viewer is a party to the conversation key.
//
// A student may open any key carrying their own id, including one with no
// messages yet. An agency may only open conversations that exist and
// belong to it.
func (s *Service) Authorize(ctx context.Context, viewer models.Viewer, key string) error {
	if !viewer.Valid() {
		return models.NewAuthorizationError(viewer.ID, "viewer is not authenticated")
	}
	_, studentID, err := conversation.ParseKey(key)
	if err != nil {
		return err
	}

	if viewer.Role == models.RoleStudent {
		if studentID != viewer.ID {
			return models.NewAuthorizationError(viewer.ID, "conversation belongs to another student")
		}
		return nil
	}

	_, agencyID, err := s.store.ConversationParties(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		return models.NewAuthorizationError(viewer.ID, "conversation does not exist")
	}
	if err != nil {
		return err
	}
	if agencyID != viewer.ID {
		return models.NewAuthorizationError(viewer.ID, "conversation belongs to another agency")
	}
	return nil
}

// History returns the thread of key in display order.
func (s *Service) History(ctx context.Context, viewer models.Viewer, key string) ([]models.Message, error) {
	if err := s.Authorize(ctx, viewer, key); err != nil {
		return nil, err
	}
	return s.store.ListByConversation(ctx, key)
}

// MarkConversationRead marks every counterpart message of key read now.
func (s *Service) MarkConversationRead(ctx context.Context, viewer models.Viewer, key string) ([]models.Message, error) {
	if err := s.Authorize(ctx, viewer, key); err != nil {
		return nil, err
	}
	return s.MarkRead(ctx, key, viewer.ID, time.Time{})
}

// ListByConversation loads thread history for an already authorized view.
func (s *Service) ListByConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	return s.store.ListByConversation(ctx, conversationID)
}

// MarkRead marks the conversation read for readerID and publishes a read
// receipt for each changed row. It serves open views, which are authorized
// when they open.
func (s *Service) MarkRead(ctx context.Context, conversationID, readerID string, before time.Time) ([]models.Message, error) {
	updated, err := s.store.MarkRead(ctx, conversationID, readerID, before)
	if err != nil {
		return nil, err
	}
	for i := range updated {
		s.publish(ctx, realtime.EventUpdate, updated[i])
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, kind realtime.EventKind, m models.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, realtime.Event{Kind: kind, Message: m}); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("message_id", m.ID).
			Str("kind", string(kind)).
			Msg("Failed to publish message change")
	}
}
