// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package websocket

import (
	"errors"

	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/realtime"
)

// Client frame types
const (
	FrameOpen  = "open"
	FrameClose = "close"
	FrameFocus = "focus"
	FrameBlur  = "blur"
	FrameSend  = "send"
	FramePing  = "ping"
)

// Server message types
const (
	MessageTypeThreadSnapshot = "thread_snapshot"
	MessageTypeThreadMessage  = "thread_message"
	MessageTypeThreadStatus   = "thread_status"
	MessageTypeUnreadChanged  = "unread_changed"
	MessageTypeError          = "error"
	MessageTypePong           = "pong"
)

// Message is a server frame.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ClientFrame is a frame sent by the browser.
type ClientFrame struct {
	Type           string               `json:"type" validate:"required,oneof=open close focus blur send ping"`
	ConversationID string               `json:"conversation_id,omitempty" validate:"required_unless=Type ping,omitempty,max=300,convkey"`
	Message        *models.MessageDraft `json:"message,omitempty" validate:"-"`
}

// ThreadSnapshotData carries a whole thread.
type ThreadSnapshotData struct {
	ConversationID string           `json:"conversation_id"`
	State          string           `json:"state"`
	Messages       []models.Message `json:"messages"`
}

// ThreadMessageData carries one changed row. Change is inserted,
// replaced, confirmed or removed.
type ThreadMessageData struct {
	ConversationID string          `json:"conversation_id"`
	Change         string          `json:"change"`
	Message        *models.Message `json:"message,omitempty"`
	ReplacesID     string          `json:"replaces_id,omitempty"`
}

// ThreadStatusData reports subscription state: subscribed, reconnecting
// or idle.
type ThreadStatusData struct {
	ConversationID string `json:"conversation_id"`
	State          string `json:"state"`
}

// UnreadChangedData is the viewer's badge count.
type UnreadChangedData struct {
	Unread int `json:"unread"`
}

// ErrorData reports a failed frame.
type ErrorData struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ClientNonce    string `json:"client_nonce,omitempty"`
}

// updateMessage converts a thread update into a server frame.
func updateMessage(u realtime.Update) Message {
	switch u.Kind {
	case realtime.UpdateSnapshot:
		msgs := u.Messages
		if msgs == nil {
			msgs = []models.Message{}
		}
		return Message{Type: MessageTypeThreadSnapshot, Data: ThreadSnapshotData{
			ConversationID: u.Key,
			State:          u.State.String(),
			Messages:       msgs,
		}}
	case realtime.UpdateStatus:
		return Message{Type: MessageTypeThreadStatus, Data: ThreadStatusData{
			ConversationID: u.Key,
			State:          u.State.String(),
		}}
	default:
		return Message{Type: MessageTypeThreadMessage, Data: ThreadMessageData{
			ConversationID: u.Key,
			Change:         string(u.Kind),
			Message:        u.Message,
			ReplacesID:     u.ReplacesID,
		}}
	}
}

// errorMessage converts err into an error frame. Authorization failures
// get a generic message.
func errorMessage(err error, conversationID, nonce string) Message {
	data := ErrorData{ConversationID: conversationID, ClientNonce: nonce}
	switch {
	case errors.Is(err, models.ErrValidation):
		data.Code = "VALIDATION_ERROR"
		data.Message = err.Error()
	case errors.Is(err, models.ErrAuthorization):
		data.Code = "FORBIDDEN"
		data.Message = "Not allowed"
	case errors.Is(err, models.ErrTransport):
		data.Code = "UNAVAILABLE"
		data.Message = "Realtime updates are temporarily unavailable"
	default:
		data.Code = "INTERNAL_ERROR"
		data.Message = "Internal error"
	}
	return Message{Type: MessageTypeError, Data: data}
}
