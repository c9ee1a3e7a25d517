// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/readstate"
	"github.com/tomtom215/roomlink/internal/realtime"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Messenger is the messaging service as seen by a session.
type Messenger interface {
	realtime.HistoryLoader
	readstate.Marker
	Authorize(ctx context.Context, viewer models.Viewer, key string) error
	Send(ctx context.Context, viewer models.Viewer, draft *models.MessageDraft) (*models.Message, error)
	UnreadCount(ctx context.Context, viewer models.Viewer) (int, error)
}

// HubConfig wires a Hub.
type HubConfig struct {
	Messenger Messenger
	Transport realtime.Transport

	// ReadDebounce is the delay before an open view marks messages read.
	ReadDebounce time.Duration

	// MaxViews bounds concurrently open conversations per connection.
	MaxViews int
}

// Hub tracks connected sessions and closes them on shutdown.
type Hub struct {
	messenger    Messenger
	transport    realtime.Transport
	readDebounce time.Duration
	maxViews     int

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a Hub. Call Serve before registering clients.
func NewHub(cfg HubConfig) *Hub {
	maxViews := cfg.MaxViews
	if maxViews <= 0 {
		maxViews = 16
	}
	return &Hub{
		messenger:    cfg.Messenger,
		transport:    cfg.Transport,
		readDebounce: cfg.ReadDebounce,
		maxViews:     maxViews,
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		stopped:      make(chan struct{}),
	}
}

// Register adds a client and starts its pumps. It returns false when the
// hub has stopped or ctx ends first; the caller then closes the connection.
func (h *Hub) Register(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		c.Start()
		return true
	case <-h.stopped:
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Serve runs the hub until ctx is canceled, then closes every client.
//
// Lifecycle events are handled before blocking so that client state is
// consistent before each wait.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WSConnections.Inc()
			logging.Info().Str("viewer_id", client.viewer.ID).Int("total_clients", total).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			delete(h.clients, client)
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				metrics.WSConnections.Dec()
				logging.Info().Str("viewer_id", client.viewer.ID).Int("total_clients", total).Msg("websocket client disconnected")
			}
		}
	}
}

// String names the service for the supervisor.
func (h *Hub) String() string { return "websocket-hub" }

// logGracefulShutdown closes all clients and logs the shutdown. ctx.Err()
// is not logged as an error because cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.stopped) })

	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients disconnects every client in id order. Their read pumps
// then tear down their views.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		client.disconnect()
		metrics.WSConnections.Dec()
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
