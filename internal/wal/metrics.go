// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	walWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomlink_outbox_writes_total",
		Help: "Entries written to the outbox",
	})

	walConfirmsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomlink_outbox_confirms_total",
		Help: "Entries confirmed and removed from the outbox",
	})

	// result: success, failure, dropped_max_attempts, dropped_expired
	walReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomlink_outbox_replays_total",
		Help: "Replay attempts of pending outbox entries",
	}, []string{"result"})

	walPendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roomlink_outbox_pending_entries",
		Help: "Pending outbox entries seen by the last replay pass",
	})

	walWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "roomlink_outbox_write_duration_seconds",
		Help:    "Outbox write latency",
		Buckets: prometheus.DefBuckets,
	})
)
