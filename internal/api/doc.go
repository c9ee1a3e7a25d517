// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package api exposes the conversation service over HTTP using the chi
// router.
//
// Routes (all under /api/v1 require a bearer token):
//
//	GET  /api/v1/conversations                 aggregated list, newest first
//	GET  /api/v1/conversations/unread          {"unread": n}
//	GET  /api/v1/conversations/{key}/messages  thread history
//	POST /api/v1/conversations/{key}/read      mark the thread read now
//	POST /api/v1/messages                      send a message draft
//	GET  /api/v1/ws                            websocket session
//	GET  /api/v1/health/live                   liveness probe (no auth)
//	GET  /api/v1/health/ready                  readiness probe (no auth)
//	GET  /metrics                              Prometheus exposition
//
// Every JSON body uses the models.APIResponse envelope.
package api
