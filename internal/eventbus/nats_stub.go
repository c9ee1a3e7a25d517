// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

//go:build !nats

package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/roomlink/internal/config"
)

func newNATSBackend(_ *config.EventBusConfig, _ *Bus) (message.Publisher, message.Subscriber, func() error, error) {
	return nil, nil, nil, fmt.Errorf("NATS event bus not available: build with -tags=nats")
}
