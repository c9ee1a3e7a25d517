// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/roomlink/internal/resilience"
)

// WebhookConfig configures a WebhookInvoker.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// RateLimitPerSecond paces requests; zero disables pacing.
	RateLimitPerSecond float64
	RateLimitBurst     int

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// WebhookPayload is the JSON body POSTed for each job.
type WebhookPayload struct {
	Job       string    `json:"job"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// WebhookInvoker runs jobs by POSTing to an HTTP endpoint, paced by a
// token bucket and guarded by a circuit breaker.
type WebhookInvoker struct {
	url     string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// NewWebhookInvoker creates an invoker for cfg.URL.
func NewWebhookInvoker(cfg WebhookConfig) *WebhookInvoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	return &WebhookInvoker{
		url:     cfg.URL,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "notify-webhook",
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
		}),
	}
}

// Invoke POSTs the job. Non-2xx responses are failures.
func (w *WebhookInvoker) Invoke(ctx context.Context, jobName string, payload JobPayload) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	body, err := json.Marshal(WebhookPayload{
		Job:       jobName,
		MessageID: payload.MessageID,
		Timestamp: time.Now().UTC(),
		Source:    "roomlink",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	return resilience.Execute(w.breaker, func() error {
		return w.post(ctx, body)
	})
}

func (w *WebhookInvoker) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
