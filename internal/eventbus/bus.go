// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

// Package eventbus publishes message row changes and notification jobs,
// and fans row changes out to open conversation views.
//
// Two backends share one Bus:
//   - memory: Watermill GoChannel, single process
//   - nats: Watermill over NATS JetStream, optionally with an embedded
//     server; requires building with -tags nats
//
// Subscriptions are per listing. Each subscription drops redeliveries of
// an event it has already handled.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/roomlink/internal/cache"
	"github.com/tomtom215/roomlink/internal/config"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/realtime"
	"github.com/tomtom215/roomlink/internal/resilience"
)

// metadata keys set on every published message.
const (
	metaKind           = "kind"
	metaConversationID = "conversation_id"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("event bus closed")

// Bus is the realtime.Transport and notify.JobPublisher of the service.
type Bus struct {
	mode       string
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[interface{}]
	logger     watermill.LoggerAdapter
	shutdown   func() error

	dedupCapacity int
	dedupTTL      time.Duration

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	online bool
}

// New creates the bus selected by cfg.Mode.
func New(cfg *config.EventBusConfig) (*Bus, error) {
	switch cfg.Mode {
	case "", config.EventBusMemory:
		return NewMemoryBus(cfg), nil
	case config.EventBusNATS:
		b := newBus(cfg, config.EventBusNATS)
		pub, sub, shutdown, err := newNATSBackend(cfg, b)
		if err != nil {
			return nil, err
		}
		b.publisher, b.subscriber, b.shutdown = pub, sub, shutdown
		return b, nil
	default:
		return nil, fmt.Errorf("unknown event bus mode %q", cfg.Mode)
	}
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(cfg *config.EventBusConfig) *Bus {
	b := newBus(cfg, config.EventBusMemory)

	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.OutputBuffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, b.logger)

	b.publisher = ch
	b.subscriber = ch
	b.shutdown = ch.Close
	return b
}

func newBus(cfg *config.EventBusConfig, mode string) *Bus {
	return &Bus{
		mode:   mode,
		logger: logging.NewWatermillLogger(),
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "eventbus-publish",
			FailureThreshold: cfg.BreakerFailures,
			Timeout:          cfg.BreakerTimeout,
		}),
		dedupCapacity: cfg.DedupCapacity,
		dedupTTL:      cfg.DedupTTL,
		subs:          make(map[uint64]*subscription),
		online:        true,
	}
}

// Mode returns memory or nats.
func (b *Bus) Mode() string { return b.mode }

// PublishChange publishes a row change on the row's listing topic. Inserts
// are also published on the recipient's topic.
func (b *Bus) PublishChange(ctx context.Context, ev realtime.Event) error {
	payload, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	err = b.publish(ListingTopic(ev.Message.ListingID), changeMessage(ctx, ev, payload))
	metrics.RecordBusPublish("listing", err)
	if err != nil || ev.Kind != realtime.EventInsert || ev.Message.RecipientID == "" {
		return err
	}

	err = b.publish(RecipientTopic(ev.Message.RecipientID), changeMessage(ctx, ev, payload))
	metrics.RecordBusPublish("recipient", err)
	return err
}

// changeMessage builds one Watermill message per topic; a message is not
// reused across Publish calls.
func changeMessage(ctx context.Context, ev realtime.Event, payload []byte) *message.Message {
	msg := message.NewMessage(eventID(ev), payload)
	msg.Metadata.Set(metaKind, string(ev.Kind))
	msg.Metadata.Set(metaConversationID, ev.Message.ConversationID)
	msg.SetContext(ctx)
	return msg
}

// PublishJob publishes a notification job. id is used as the message id.
func (b *Bus) PublishJob(ctx context.Context, jobName, id string, payload []byte) error {
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	err := b.publish(JobTopic(jobName), msg)
	metrics.RecordBusPublish("job", err)
	return err
}

func (b *Bus) publish(topic string, msg *message.Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	err := resilience.Execute(b.breaker, func() error {
		return b.publisher.Publish(topic, msg)
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, errors.Join(models.ErrTransport, err))
	}
	return nil
}

// Subscribe delivers the changes selected by filter to handler until the
// subscription is canceled. ctx only bounds the subscribe call itself.
func (b *Bus) Subscribe(ctx context.Context, filter realtime.Filter, handler realtime.Handler) (realtime.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topic, err := filterTopic(filter)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(context.Background())
	messages, err := b.subscriber.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, errors.Join(models.ErrTransport, err))
	}

	s := &subscription{
		bus:     b,
		id:      id,
		topic:   topic,
		handler: handler,
		seen:    cache.NewDedup(b.dedupCapacity, b.dedupTTL),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	b.subs[id] = s
	b.mu.Unlock()

	go s.run(messages)
	return s, nil
}

func filterTopic(filter realtime.Filter) (string, error) {
	switch {
	case filter.ListingID != "" && filter.RecipientID != "":
		return "", fmt.Errorf("subscribe: listing and recipient are exclusive")
	case filter.ListingID != "":
		return ListingTopic(filter.ListingID), nil
	case filter.RecipientID != "":
		return RecipientTopic(filter.RecipientID), nil
	default:
		return "", fmt.Errorf("subscribe: listing or recipient id is required")
	}
}

// ReportDisconnect tells every subscriber the transport dropped.
func (b *Bus) ReportDisconnect() {
	b.setOnline(false, realtime.StatusDisconnected)
}

// ReportReconnect tells every subscriber the transport is back and events
// may have been missed.
func (b *Bus) ReportReconnect() {
	b.setOnline(true, realtime.StatusReconnected)
}

func (b *Bus) setOnline(online bool, status realtime.Status) {
	b.mu.Lock()
	if b.closed || b.online == online {
		b.mu.Unlock()
		return
	}
	b.online = online
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	logging.Info().Str("mode", b.mode).Str("status", status.String()).Int("subscriptions", len(subs)).Msg("Event bus connectivity changed")
	for _, s := range subs {
		s.status(status)
	}
}

// Healthy reports whether the bus is open and connected.
func (b *Bus) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.online
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Serve trims subscription dedup windows until ctx is canceled. It is run
// by the supervisor; the bus works without it.
func (b *Bus) Serve(ctx context.Context) error {
	interval := b.dedupTTL
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.mu.Lock()
			subs := make([]*subscription, 0, len(b.subs))
			for _, s := range b.subs {
				subs = append(subs, s)
			}
			b.mu.Unlock()

			removed := 0
			for _, s := range subs {
				removed += s.seen.Cleanup()
			}
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Trimmed event dedup windows")
			}
		}
	}
}

// String names the service for the supervisor.
func (b *Bus) String() string {
	return "eventbus-" + b.mode
}

// Close cancels every subscription and shuts the backend down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}

	var errs []error
	if b.publisher != nil && b.mode != config.EventBusMemory {
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if b.shutdown != nil {
		if err := b.shutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

type subscription struct {
	bus     *Bus
	id      uint64
	topic   string
	handler realtime.Handler
	seen    *cache.Dedup
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) run(messages <-chan *message.Message) {
	defer close(s.done)

	for msg := range messages {
		s.deliver(msg)
		msg.Ack()
	}
}

func (s *subscription) deliver(msg *message.Message) {
	if s.seen.IsDuplicate(msg.UUID) {
		metrics.RecordBusDeduplicated()
		return
	}

	ev, err := decodeEvent(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("topic", s.topic).Str("uuid", msg.UUID).Msg("Dropping undecodable event")
		return
	}

	metrics.RecordBusDelivered()
	if s.handler.OnEvent != nil {
		s.handler.OnEvent(ev)
	}
}

func (s *subscription) status(st realtime.Status) {
	if s.handler.OnStatus != nil {
		s.handler.OnStatus(st)
	}
}

// Unsubscribe stops delivery. It does not wait for a delivery already in
// progress.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.bus.remove(s.id)
	})
}
