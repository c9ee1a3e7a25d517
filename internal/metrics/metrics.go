// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package metrics exposes the Prometheus instrumentation for Roomlink.
//
// Collectors are registered with promauto on the default registry and
// served by the API at /metrics. Callers use the Record* helpers rather
// than touching the collectors directly.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Messaging
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_messages_sent_total",
			Help: "Total number of messages stored, by sender role",
		},
		[]string{"sender_role"},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_messages_rejected_total",
			Help: "Total number of send attempts rejected before insert",
		},
		[]string{"reason"}, // validation, authorization
	)

	ReadMarks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_read_marks_total",
			Help: "Total number of mark-read calls that updated at least one row",
		},
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_messages_marked_read_total",
			Help: "Total number of message rows that received read_at",
		},
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomlink_aggregation_duration_seconds",
			Help:    "Time to load and aggregate a viewer's conversations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Realtime
	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_realtime_events_total",
			Help: "Row-change events seen by open threads, by outcome",
		},
		[]string{"outcome"}, // accepted, updated, foreign, duplicate, closed
	)

	RealtimeResyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_realtime_resyncs_total",
			Help: "Thread resynchronizations after a transport reconnect",
		},
		[]string{"result"},
	)

	OpenThreads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomlink_open_threads",
			Help: "Current number of subscribed conversation threads",
		},
	)

	// Event bus
	BusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_bus_published_total",
			Help: "Messages published to the event bus, by result",
		},
		[]string{"topic_kind", "result"},
	)

	BusDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_bus_delivered_total",
			Help: "Messages delivered from the event bus to subscribers",
		},
	)

	BusDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomlink_bus_deduplicated_total",
			Help: "Redelivered bus messages dropped by the dedup window",
		},
	)

	// Notifications
	NotificationDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomlink_notification_dispatches_total",
			Help: "Notification job invocations, by result",
		},
		[]string{"job", "result"}, // success, failure, dropped, deferred, duplicate
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomlink_notification_duration_seconds",
			Help:    "Notification job invocation latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"job"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket frames sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket frames received",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
		[]string{"error_type"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordMessageSent counts a stored message.
func RecordMessageSent(senderRole string) {
	MessagesSent.WithLabelValues(senderRole).Inc()
}

// RecordMessageRejected counts a send rejected before insert.
func RecordMessageRejected(reason string) {
	MessagesRejected.WithLabelValues(reason).Inc()
}

// RecordReadMark records one mark-read call that updated n rows.
func RecordReadMark(n int) {
	if n <= 0 {
		return
	}
	ReadMarks.Inc()
	MessagesMarkedRead.Add(float64(n))
}

// RecordAggregation observes one conversation list computation.
func RecordAggregation(duration time.Duration) {
	AggregationDuration.Observe(duration.Seconds())
}

// RecordRealtimeEvent counts an event by its routing outcome.
func RecordRealtimeEvent(outcome string) {
	RealtimeEvents.WithLabelValues(outcome).Inc()
}

// RecordResync counts a reconnect resynchronization.
func RecordResync(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	RealtimeResyncs.WithLabelValues(result).Inc()
}

// TrackOpenThread adjusts the open thread gauge.
func TrackOpenThread(inc bool) {
	if inc {
		OpenThreads.Inc()
	} else {
		OpenThreads.Dec()
	}
}

// RecordBusPublish counts a publish attempt.
func RecordBusPublish(topicKind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BusPublished.WithLabelValues(topicKind, result).Inc()
}

// RecordBusDelivered counts a message handed to a subscriber.
func RecordBusDelivered() {
	BusDelivered.Inc()
}

// RecordBusDeduplicated counts a redelivery dropped by the dedup window.
func RecordBusDeduplicated() {
	BusDeduplicated.Inc()
}

// RecordNotification records a notification job outcome.
func RecordNotification(job, result string, duration time.Duration) {
	NotificationDispatches.WithLabelValues(job, result).Inc()
	if duration > 0 {
		NotificationDuration.WithLabelValues(job).Observe(duration.Seconds())
	}
}

// RecordCircuitBreakerTransition records a breaker state change. States use
// gobreaker's String() names.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
