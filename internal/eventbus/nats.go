// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

//go:build nats

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/roomlink/internal/config"
	"github.com/tomtom215/roomlink/internal/logging"
)

// newNATSBackend connects Watermill to NATS JetStream, starting an
// embedded server first when configured.
func newNATSBackend(cfg *config.EventBusConfig, b *Bus) (message.Publisher, message.Subscriber, func() error, error) {
	url := cfg.URL
	var embedded *server.Server
	if cfg.EmbeddedServer {
		ns, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		embedded = ns
		url = ns.ClientURL()
	}

	stopServer := func() {
		if embedded != nil {
			embedded.Shutdown()
			embedded.WaitForShutdown()
		}
	}

	if err := ensureStream(url, cfg); err != nil {
		stopServer()
		return nil, nil, nil, err
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("roomlink"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				b.logger.Error("NATS disconnected", err, nil)
			}
			b.ReportDisconnect()
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			b.logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
			b.ReportReconnect()
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, b.logger)
	if err != nil {
		stopServer()
		return nil, nil, nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	// Views are ephemeral: no durable name, no queue group, new messages only.
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverNew(),
				natsgo.BindStream(cfg.StreamName),
			},
		},
	}, b.logger)
	if err != nil {
		_ = pub.Close()
		stopServer()
		return nil, nil, nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	shutdown := func() error {
		err := sub.Close()
		stopServer()
		if err != nil {
			return fmt.Errorf("close subscriber: %w", err)
		}
		return nil
	}

	logging.Info().Str("url", url).Bool("embedded", embedded != nil).Str("stream", cfg.StreamName).Msg("NATS event bus connected")
	return pub, sub, shutdown, nil
}

func startEmbeddedServer(cfg *config.EventBusConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName: "roomlink-events",
		Host:       "127.0.0.1",
		Port:       server.RANDOM_PORT,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoSigs:     true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}

// ensureStream creates or updates the stream holding listing, recipient
// and job subjects. Its duplicate window backs publisher-side dedup.
func ensureStream(url string, cfg *config.EventBusConfig) error {
	nc, err := natsgo.Connect(url, natsgo.Name("roomlink-stream-init"))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	duplicates := cfg.DedupTTL
	if duplicates <= 0 {
		duplicates = 2 * time.Minute
	}

	streamCfg := jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{listingTopicPrefix + ">", recipientTopicPrefix + ">", jobTopicPrefix + ">"},
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     24 * time.Hour,
		Duplicates: duplicates,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
	}

	_, err = js.Stream(ctx, cfg.StreamName)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", cfg.StreamName, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", cfg.StreamName, err)
	}
	return nil
}
