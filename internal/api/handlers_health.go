// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readinessTimeout = 3 * time.Second

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, time.Now())
}

// HealthReady runs every registered readiness check and answers 503 if any
// fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service not ready",
			map[string]interface{}{"checks": results})
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{"ready": true, "checks": results}, start)
}
