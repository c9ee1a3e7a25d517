// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package notify

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// JobPublisher publishes a job message. The id lets the transport drop
// redeliveries.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobName, id string, payload []byte) error
}

// BusInvoker runs jobs by publishing them to the event bus for an external
// worker to consume.
type BusInvoker struct {
	publisher JobPublisher
}

// NewBusInvoker creates an invoker over publisher.
func NewBusInvoker(publisher JobPublisher) *BusInvoker {
	return &BusInvoker{publisher: publisher}
}

// Invoke publishes payload as JSON.
func (b *BusInvoker) Invoke(ctx context.Context, jobName string, payload JobPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}
	return b.publisher.PublishJob(ctx, jobName, jobName+":"+payload.MessageID, data)
}
