// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/roomlink/internal/auth"
	"github.com/tomtom215/roomlink/internal/authz"
	"github.com/tomtom215/roomlink/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	authn         *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(handler *Handler, authn *auth.Middleware, az *authz.Middleware, mw *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		authn:         authn,
		authz:         az,
		chiMiddleware: mw,
	}
}

// Setup builds the HTTP handler.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit("api"))
		r.Use(middleware.Metrics)
		r.Use(router.authn.Authenticate)

		r.Route("/conversations", func(r chi.Router) {
			r.Use(router.authz.Require(authz.ObjectConversations, ""))
			r.Get("/", router.handler.Conversations)
			r.Get("/unread", router.handler.UnreadCount)
			r.Get("/{key}/messages", router.handler.History)
			r.Post("/{key}/read", router.handler.MarkRead)
		})

		r.With(router.authz.Require(authz.ObjectMessages, authz.ActionWrite)).
			Post("/messages", router.handler.SendMessage)

		r.With(router.authz.Require(authz.ObjectWebsocket, authz.ActionRead)).
			Get("/ws", router.handler.WebSocket)
	})

	return r
}

// keyParam returns the unescaped {key} path parameter. Clients may
// percent-encode the colons in a conversation key.
func keyParam(r *http.Request) string {
	raw := chi.URLParam(r, "key")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}
