// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package authz

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomlink/internal/auth"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
)

// DenialAuditor records policy denials. *audit.Logger implements it.
type DenialAuditor interface {
	LogAuthzDenied(r *http.Request, viewer models.Viewer, resource, action string)
}

// Middleware applies the enforcer to HTTP routes.
type Middleware struct {
	enforcer *Enforcer
	auditor  DenialAuditor
}

// NewMiddleware creates the authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// WithAuditor records every denial through a.
func (m *Middleware) WithAuditor(a DenialAuditor) *Middleware {
	m.auditor = a
	return m
}

// Require returns chi-compatible middleware allowing the request only when
// the authenticated viewer's role may perform action on object. An empty
// action is derived from the request method.
func (m *Middleware) Require(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewer, ok := auth.ViewerFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "No authentication context")
				return
			}

			act := action
			if act == "" {
				act = methodToAction(r.Method)
			}

			allowed, err := m.enforcer.Enforce(viewer.Role, object, act)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}
			if !allowed {
				logging.Ctx(r.Context()).Debug().
					Str("role", viewer.Role).
					Str("object", object).
					Str("action", act).
					Msg("Authorization denied")
				if m.auditor != nil {
					m.auditor.LogAuthzDenied(r, viewer, object, act)
				}
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return ActionWrite
	default:
		return ActionRead
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
}
