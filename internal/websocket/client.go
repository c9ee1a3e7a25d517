// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
	"github.com/tomtom215/roomlink/internal/readstate"
	"github.com/tomtom215/roomlink/internal/realtime"
	"github.com/tomtom215/roomlink/internal/validation"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256

	openTimeout = 10 * time.Second
	sendTimeout = 10 * time.Second
)

// clientIDCounter gives clients a stable order for shutdown.
var clientIDCounter atomic.Uint64

// view is one open conversation of a session.
type view struct {
	thread  *realtime.Thread
	tracker *readstate.Tracker
}

// Client is one websocket session of an authenticated viewer.
type Client struct {
	id     uint64
	hub    *Hub
	conn   *websocket.Conn
	viewer models.Viewer

	send     chan Message
	done     chan struct{}
	doneOnce sync.Once

	// ctx bounds store calls made for this session; canceled on teardown.
	ctx    context.Context
	cancel context.CancelFunc

	// signal is shared by the session's trackers and inbox and observed by
	// unreadLoop.
	signal *readstate.Signal

	mu    sync.Mutex
	views map[string]*view
	inbox realtime.Subscription

	wg sync.WaitGroup
}

// NewClient creates a session for viewer on conn.
func NewClient(hub *Hub, conn *websocket.Conn, viewer models.Viewer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.ContextWithViewerID(ctx, viewer.ID)
	return &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		viewer: viewer,
		send:   make(chan Message, sendBufferSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		signal: readstate.NewSignal(),
		views:  make(map[string]*view),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	c.watchInbox()
	ch, unsubscribe := c.signal.Subscribe()
	c.wg.Add(1)
	go c.unreadLoop(ch, unsubscribe)
	go c.writePump()
	go c.readPump()
}

// disconnect stops the write pump, which closes the connection and so
// ends the read pump.
func (c *Client) disconnect() {
	c.doneOnce.Do(func() { close(c.done) })
}

// enqueue queues msg without blocking. A full buffer disconnects the
// client.
func (c *Client) enqueue(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
		logging.Warn().Uint64("client_id", c.id).Str("type", msg.Type).Msg("websocket send buffer full, disconnecting client")
		c.disconnect()
		return false
	}
}

func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorMessage(models.NewValidationError("frame", "malformed JSON"), "", ""))
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.disconnect()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-c.send:
			data, err := json.Marshal(msg)
			if err != nil {
				metrics.WSErrors.WithLabelValues("marshal").Inc()
				logging.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal websocket message")
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}
			metrics.WSMessagesSent.Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown closes every view, stops the unread observer and leaves the hub.
func (c *Client) teardown() {
	c.closeViews()
	c.mu.Lock()
	inbox := c.inbox
	c.inbox = nil
	c.mu.Unlock()
	if inbox != nil {
		inbox.Unsubscribe()
	}
	c.signal.Close()
	c.cancel()
	c.wg.Wait()
	c.hub.unregisterClient(c)
	c.disconnect()
}

// watchInbox follows new messages addressed to the viewer in any
// conversation, open or not, and wakes unreadLoop for each. A transport
// reconnect also wakes it, since inserts may have been missed.
func (c *Client) watchInbox() {
	sub, err := c.hub.transport.Subscribe(c.ctx, realtime.Filter{RecipientID: c.viewer.ID}, realtime.Handler{
		OnEvent: func(ev realtime.Event) {
			if ev.Kind == realtime.EventInsert && ev.Message.SenderID != c.viewer.ID {
				c.signal.Notify()
			}
		},
		OnStatus: func(st realtime.Status) {
			if st == realtime.StatusReconnected {
				c.signal.Notify()
			}
		},
	})
	if err != nil {
		logging.Ctx(c.ctx).Warn().Err(err).Msg("failed to watch inbox, unread count refreshes on read only")
		return
	}

	c.mu.Lock()
	c.inbox = sub
	c.mu.Unlock()
}

func (c *Client) unreadLoop(ch <-chan struct{}, unsubscribe func()) {
	defer c.wg.Done()
	defer unsubscribe()

	c.pushUnread()
	for range ch {
		c.pushUnread()
	}
}

func (c *Client) pushUnread() {
	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()

	n, err := c.hub.messenger.UnreadCount(ctx, c.viewer)
	if err != nil {
		if c.ctx.Err() == nil {
			logging.Ctx(c.ctx).Warn().Err(err).Msg("failed to compute unread count")
		}
		return
	}
	c.enqueue(Message{Type: MessageTypeUnreadChanged, Data: UnreadChangedData{Unread: n}})
}

func (c *Client) handleFrame(f *ClientFrame) {
	if verr := validation.ValidateStruct(f); verr != nil {
		c.enqueue(errorMessage(fmt.Errorf("%w: %w", models.ErrValidation, verr), f.ConversationID, ""))
		return
	}

	var err error
	switch f.Type {
	case FramePing:
		c.enqueue(Message{Type: MessageTypePong})
	case FrameOpen:
		err = c.openView(f.ConversationID)
	case FrameClose:
		c.closeView(f.ConversationID)
	case FrameFocus, FrameBlur:
		err = c.setFocus(f.ConversationID, f.Type == FrameFocus)
	case FrameSend:
		c.sendMessage(f)
	}

	if err != nil {
		logging.Ctx(c.ctx).Debug().Err(err).Str("frame", f.Type).Str("conversation_id", f.ConversationID).Msg("websocket frame failed")
		c.enqueue(errorMessage(err, f.ConversationID, ""))
	}
}

func (c *Client) lookupView(key string) *view {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views[key]
}

// openView authorizes the viewer and opens a thread and tracker for key.
// Opening a view that is already open resends its snapshot.
func (c *Client) openView(key string) error {
	c.mu.Lock()
	if v, ok := c.views[key]; ok {
		c.mu.Unlock()
		c.enqueue(updateMessage(realtime.Update{
			Kind:     realtime.UpdateSnapshot,
			Key:      key,
			Messages: v.thread.Messages(),
			State:    v.thread.State(),
		}))
		return nil
	}
	if len(c.views) >= c.hub.maxViews {
		c.mu.Unlock()
		return models.NewValidationError("conversation_id", "too many open conversations")
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, openTimeout)
	defer cancel()

	if err := c.hub.messenger.Authorize(ctx, c.viewer, key); err != nil {
		return err
	}

	tracker := readstate.NewTracker(readstate.Config{
		ConversationID: key,
		ReaderID:       c.viewer.ID,
		Marker:         c.hub.messenger,
		Signal:         c.signal,
		Delay:          c.hub.readDebounce,
	})
	thread, err := realtime.NewThread(realtime.ThreadConfig{
		Key:       key,
		Viewer:    c.viewer,
		Transport: c.hub.transport,
		History:   c.hub.messenger,
		Listener:  func(u realtime.Update) { c.enqueue(updateMessage(u)) },
		OnInbound: tracker.Inbound,
	})
	if err != nil {
		tracker.Close()
		return err
	}
	if err := thread.Open(ctx); err != nil {
		tracker.Close()
		return err
	}

	c.mu.Lock()
	c.views[key] = &view{thread: thread, tracker: tracker}
	c.mu.Unlock()

	tracker.Open()
	return nil
}

func (c *Client) closeView(key string) {
	c.mu.Lock()
	v, ok := c.views[key]
	delete(c.views, key)
	c.mu.Unlock()
	if !ok {
		return
	}

	v.thread.Close()
	v.tracker.Close()
	c.enqueue(Message{Type: MessageTypeThreadStatus, Data: ThreadStatusData{
		ConversationID: key,
		State:          realtime.StateIdle.String(),
	}})
}

func (c *Client) closeViews() {
	c.mu.Lock()
	views := c.views
	c.views = make(map[string]*view)
	c.mu.Unlock()

	for _, v := range views {
		v.thread.Close()
		v.tracker.Close()
	}
}

func (c *Client) setFocus(key string, focused bool) error {
	v := c.lookupView(key)
	if v == nil {
		return models.NewValidationError("conversation_id", "conversation is not open")
	}
	v.tracker.SetFocused(focused)
	return nil
}

// sendMessage stores a draft. When the conversation is open the message
// is shown optimistically and then confirmed or withdrawn.
func (c *Client) sendMessage(f *ClientFrame) {
	key := f.ConversationID
	if f.Message == nil {
		c.enqueue(errorMessage(models.NewValidationError("message", "is required"), key, ""))
		return
	}

	draft := *f.Message
	if draft.SenderID == "" {
		draft.SenderID = c.viewer.ID
	}
	if draft.SenderRole == "" {
		draft.SenderRole = c.viewer.Role
	}
	if draft.ConversationID == "" {
		draft.ConversationID = key
	}
	if draft.ConversationID != key {
		c.enqueue(errorMessage(models.NewValidationError("conversation_id", "does not match the frame"), key, draft.ClientNonce))
		return
	}
	if draft.ClientNonce == "" {
		draft.ClientNonce = uuid.New().String()
	}
	nonce := draft.ClientNonce

	v := c.lookupView(key)
	if v != nil {
		if err := v.thread.AddOptimistic(optimisticMessage(&draft)); err != nil {
			logging.Ctx(c.ctx).Debug().Err(err).Str("conversation_id", key).Msg("optimistic message not shown")
		}
	}

	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()

	stored, err := c.hub.messenger.Send(ctx, c.viewer, &draft)
	if err != nil {
		if v != nil {
			v.thread.Fail(nonce)
		}
		logging.Ctx(c.ctx).Debug().Err(err).Str("conversation_id", key).Msg("websocket send failed")
		c.enqueue(errorMessage(err, key, nonce))
		return
	}
	if v != nil {
		v.thread.Confirm(*stored)
	}
}

func optimisticMessage(d *models.MessageDraft) models.Message {
	return models.Message{
		ConversationID:   d.ConversationID,
		ListingID:        d.ListingID,
		StudentID:        d.StudentID,
		AgencyID:         d.AgencyID,
		SenderID:         d.SenderID,
		SenderRole:       d.SenderRole,
		RecipientID:      d.RecipientID(),
		Body:             d.Body,
		SenderName:       d.SenderName,
		SenderContact:    d.SenderContact,
		SenderUniversity: d.SenderUniversity,
		RecipientName:    d.RecipientName,
		RecipientContact: d.RecipientContact,
		ListingTitle:     d.ListingTitle,
		ListingImage:     d.ListingImage,
		ListingPrice:     d.ListingPrice,
		ListingAddress:   d.ListingAddress,
		ClientNonce:      d.ClientNonce,
	}
}
