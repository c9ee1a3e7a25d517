// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the messaging subsystem. Typed errors below wrap
// them so callers can branch with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrAuthorization        = errors.New("not authorized")
	ErrNotFound             = errors.New("not found")
	ErrTransport            = errors.New("transport failure")
	ErrNotificationDispatch = errors.New("notification dispatch failed")
)

// ValidationError reports an input the sender can fix.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// AuthorizationError reports a caller acting outside its own conversations.
// Its message is logged; clients only ever see a generic failure.
type AuthorizationError struct {
	ViewerID string
	Reason   string
}

// NewAuthorizationError creates an AuthorizationError.
func NewAuthorizationError(viewerID, reason string) *AuthorizationError {
	return &AuthorizationError{ViewerID: viewerID, Reason: reason}
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%v: viewer %s: %s", ErrAuthorization, e.ViewerID, e.Reason)
}

func (e *AuthorizationError) Unwrap() error { return ErrAuthorization }

// TransportError wraps a subscription or query failure on the push path.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrTransport, e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// NotificationDispatchError wraps a failed notification job invocation.
type NotificationDispatchError struct {
	JobName   string
	MessageID string
	Err       error
}

func (e *NotificationDispatchError) Error() string {
	return fmt.Sprintf("%v: job %s for message %s: %v", ErrNotificationDispatch, e.JobName, e.MessageID, e.Err)
}

func (e *NotificationDispatchError) Unwrap() []error {
	return []error{ErrNotificationDispatch, e.Err}
}
