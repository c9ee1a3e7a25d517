// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/models"
)

type contextKey string

const viewerContextKey contextKey = "viewer"

// ContextWithViewer returns a context carrying viewer.
func ContextWithViewer(ctx context.Context, viewer models.Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey, viewer)
}

// ViewerFromContext returns the authenticated viewer, if any.
func ViewerFromContext(ctx context.Context) (models.Viewer, bool) {
	v, ok := ctx.Value(viewerContextKey).(models.Viewer)
	return v, ok
}

// FailureAuditor records rejected credentials. *audit.Logger implements it.
type FailureAuditor interface {
	LogAuthFailure(r *http.Request, reason string)
}

// Middleware authenticates requests with a bearer token.
type Middleware struct {
	validator *TokenValidator
	auditor   FailureAuditor
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(validator *TokenValidator) *Middleware {
	return &Middleware{validator: validator}
}

// WithAuditor records every rejected request through a.
func (m *Middleware) WithAuditor(a FailureAuditor) *Middleware {
	m.auditor = a
	return m
}

// Authenticate rejects requests without a valid token and stores the
// viewer in the request context.
//
// Browsers cannot set headers on websocket handshakes, so upgrade requests
// may carry the token in the access_token query parameter instead.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			m.audit(r, "missing token")
			writeUnauthorized(w, "Authentication required")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected bearer token")
			m.audit(r, err.Error())
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		viewer := claims.Viewer()
		ctx := ContextWithViewer(r.Context(), viewer)
		ctx = logging.ContextWithViewerID(ctx, viewer.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) audit(r *http.Request, reason string) {
	if m.auditor != nil {
		m.auditor.LogAuthFailure(r, reason)
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="roomlink"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: "AUTHENTICATION_ERROR", Message: message},
	})
}
