// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package middleware holds chi-compatible HTTP middleware shared by the API
// router: request id propagation into the logging context and Prometheus
// request instrumentation.
//
//	r := chi.NewRouter()
//	r.Use(middleware.RequestID)
//	r.Use(middleware.Metrics)
package middleware
