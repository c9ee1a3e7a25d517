// Roomlink - Student Rental Marketplace Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomlink

package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/roomlink/internal/conversation"
	"github.com/tomtom215/roomlink/internal/logging"
	"github.com/tomtom215/roomlink/internal/metrics"
	"github.com/tomtom215/roomlink/internal/models"
)

// State is the lifecycle of a Thread.
type State int

const (
	StateIdle State = iota
	StateSubscribed
	// StateReconnecting means the transport dropped; events may have been
	// missed until the next resync completes.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// UpdateKind says what an Update carries.
type UpdateKind string

const (
	// UpdateSnapshot carries the whole thread in Messages.
	UpdateSnapshot UpdateKind = "snapshot"
	// UpdateInserted carries a new row in Message.
	UpdateInserted UpdateKind = "inserted"
	// UpdateReplaced carries a row whose read or reply state changed.
	UpdateReplaced UpdateKind = "replaced"
	// UpdateConfirmed carries the stored row for an optimistic send;
	// ReplacesID is the local id it supersedes.
	UpdateConfirmed UpdateKind = "confirmed"
	// UpdateRemoved carries the id of a withdrawn optimistic row in ReplacesID.
	UpdateRemoved UpdateKind = "removed"
	// UpdateStatus carries a State change.
	UpdateStatus UpdateKind = "status"
)

// Update is delivered to the Listener after every accepted change.
type Update struct {
	Kind       UpdateKind
	Key        string
	Message    *models.Message
	Messages   []models.Message
	ReplacesID string
	State      State
}

// Listener observes a Thread. It is called serially and must not call
// Close on the same Thread.
type Listener func(Update)

// localIDPrefix marks optimistic rows that have no server id yet.
const localIDPrefix = "local-"

// ErrThreadOpen is returned by Open on a thread that is already open.
var ErrThreadOpen = errors.New("thread already open")

// resync retry policy after a reconnect. A resync retries until it
// succeeds, the thread closes or a newer reconnect supersedes it.
var (
	resyncBackoff    = 250 * time.Millisecond
	resyncMaxBackoff = 10 * time.Second
)

// ThreadConfig configures a Thread.
type ThreadConfig struct {
	// Key is the conversation to show.
	Key       string
	Viewer    models.Viewer
	Transport Transport
	History   HistoryLoader
	Listener  Listener

	// OnInbound is called, after the Listener, for every newly accepted row
	// authored by the counterpart.
	OnInbound func(models.Message)
}

// Thread is the live state of one open conversation view.
type Thread struct {
	key       string
	listingID string
	viewer    models.Viewer
	transport Transport
	history   HistoryLoader
	listener  Listener
	onInbound func(models.Message)

	// emitMu serializes mutation+delivery so listeners observe changes in
	// the order they were applied. Always taken before mu.
	emitMu sync.Mutex

	mu      sync.Mutex
	state   State
	gen     uint64
	msgs    []models.Message
	pending map[string]string // client nonce -> local id
	resyncs uint64            // bumped per reconnect; older resyncs stop
	sub     Subscription
	ctx     context.Context // canceled by Close; bounds resync work
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewThread validates cfg and returns an idle Thread.
func NewThread(cfg ThreadConfig) (*Thread, error) {
	listingID, _, err := conversation.ParseKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	if cfg.Transport == nil || cfg.History == nil {
		return nil, fmt.Errorf("thread %s: transport and history are required", cfg.Key)
	}
	if !cfg.Viewer.Valid() {
		return nil, models.NewAuthorizationError(cfg.Viewer.ID, "viewer is not authenticated")
	}

	listener := cfg.Listener
	if listener == nil {
		listener = func(Update) {}
	}

	return &Thread{
		key:       cfg.Key,
		listingID: listingID,
		viewer:    cfg.Viewer,
		transport: cfg.Transport,
		history:   cfg.History,
		listener:  listener,
		onInbound: cfg.OnInbound,
		pending:   make(map[string]string),
	}, nil
}

// Key returns the conversation key.
func (t *Thread) Key() string { return t.key }

// State returns the current lifecycle state.
func (t *Thread) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Messages returns a copy of the thread in display order.
func (t *Thread) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.msgs...)
}

// Open subscribes to the listing's change feed, loads the history and
// delivers an UpdateSnapshot. Events that arrive while the history loads
// are merged into the snapshot.
func (t *Thread) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return ErrThreadOpen
	}
	t.gen++
	gen := t.gen
	t.state = StateSubscribed
	t.msgs = nil
	t.pending = make(map[string]string)
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.mu.Unlock()
	metrics.TrackOpenThread(true)

	sub, err := t.transport.Subscribe(ctx, Filter{ListingID: t.listingID}, Handler{
		OnEvent:  func(ev Event) { t.handleEvent(gen, ev) },
		OnStatus: func(st Status) { t.handleStatus(gen, st) },
	})
	if err != nil {
		t.abortOpen(gen)
		return fmt.Errorf("subscribe to listing %s: %w", t.listingID, errors.Join(models.ErrTransport, err))
	}

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	t.sub = sub
	t.mu.Unlock()

	history, err := t.history.ListByConversation(ctx, t.key)
	if err != nil {
		t.Close()
		return fmt.Errorf("load conversation %s: %w", t.key, err)
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return nil
	}
	t.msgs = reconcile(t.msgs, history, t.pending, t.viewer.ID)
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	logging.Debug().Str("conversation_id", t.key).Int("messages", len(snapshot.Messages)).Msg("Thread opened")
	t.listener(snapshot)
	return nil
}

func (t *Thread) abortOpen(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen == gen {
		t.gen++
		t.state = StateIdle
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		metrics.TrackOpenThread(false)
	}
}

// Close unsubscribes and returns once no Listener call for this thread is
// in flight. Events that arrive afterwards are dropped. Close on an idle
// thread is a no-op.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.state = StateIdle
	sub := t.sub
	t.sub = nil
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}

	// barrier: wait out any delivery that passed the generation check
	t.emitMu.Lock()
	t.emitMu.Unlock() //nolint:staticcheck // empty critical section is the barrier

	t.wg.Wait()
	metrics.TrackOpenThread(false)
	logging.Debug().Str("conversation_id", t.key).Msg("Thread closed")
}

// AddOptimistic shows a locally sent message before the store confirms it.
// m.ClientNonce is required; the row gets a local id until Confirm.
func (t *Thread) AddOptimistic(m models.Message) error {
	if m.ClientNonce == "" {
		return models.NewValidationError("client_nonce", "is required for optimistic messages")
	}
	if m.ConversationID != t.key {
		return models.NewValidationError("conversation_id", "does not belong to this thread")
	}
	if m.ID == "" {
		m.ID = localIDPrefix + m.ClientNonce
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return fmt.Errorf("thread %s is closed", t.key)
	}
	if _, dup := t.pending[m.ClientNonce]; dup {
		t.mu.Unlock()
		return nil
	}
	// a retry of a send the store already confirmed
	if t.storedNonceLocked(m.ClientNonce, m.SenderID) {
		t.mu.Unlock()
		return nil
	}
	t.pending[m.ClientNonce] = m.ID
	t.msgs = insertSorted(t.msgs, m)
	t.mu.Unlock()

	t.listener(Update{Kind: UpdateInserted, Key: t.key, Message: &m})
	return nil
}

// Confirm applies the stored row of a send. It has the same effect as the
// transport delivering the insert, so whichever arrives second is dropped.
func (t *Thread) Confirm(stored models.Message) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()
	t.handleEvent(gen, Event{Kind: EventInsert, Message: stored})
}

// Fail withdraws the optimistic row for nonce.
func (t *Thread) Fail(nonce string) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	localID, ok := t.pending[nonce]
	if !ok || t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	delete(t.pending, nonce)
	if i := indexOf(t.msgs, localID); i >= 0 {
		t.msgs = removeAt(t.msgs, i)
	}
	t.mu.Unlock()

	t.listener(Update{Kind: UpdateRemoved, Key: t.key, ReplacesID: localID})
}

func (t *Thread) handleEvent(gen uint64, ev Event) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.gen != gen || t.state == StateIdle {
		t.mu.Unlock()
		metrics.RecordRealtimeEvent("closed")
		return
	}

	incoming := ev.Message
	if incoming.ConversationID != t.key {
		t.mu.Unlock()
		metrics.RecordRealtimeEvent("foreign")
		return
	}

	update, inbound, outcome := t.applyLocked(incoming)
	t.mu.Unlock()

	metrics.RecordRealtimeEvent(outcome)
	if update == nil {
		return
	}
	t.listener(*update)
	if inbound && t.onInbound != nil {
		t.onInbound(*update.Message)
	}
}

// applyLocked folds one row into local state. It returns nil when the
// row adds nothing.
func (t *Thread) applyLocked(incoming models.Message) (update *Update, inbound bool, outcome string) {
	if i := indexOf(t.msgs, incoming.ID); i >= 0 {
		merged := mergeRow(t.msgs[i], incoming)
		changed := !sameState(t.msgs[i], merged)
		t.msgs[i] = merged

		// the stored row is already shown; withdraw a pending copy of it
		if localID, ok := t.takePendingLocked(incoming); ok {
			return &Update{Kind: UpdateConfirmed, Key: t.key, Message: &merged, ReplacesID: localID}, false, "confirmed"
		}
		if !changed {
			return nil, false, "duplicate"
		}
		return &Update{Kind: UpdateReplaced, Key: t.key, Message: &merged}, false, "replaced"
	}

	if localID, ok := t.takePendingLocked(incoming); ok {
		t.msgs = insertSorted(t.msgs, incoming)
		return &Update{Kind: UpdateConfirmed, Key: t.key, Message: &incoming, ReplacesID: localID}, false, "confirmed"
	}

	t.msgs = insertSorted(t.msgs, incoming)
	return &Update{Kind: UpdateInserted, Key: t.key, Message: &incoming}, incoming.SenderID != t.viewer.ID, "accepted"
}

// takePendingLocked removes the optimistic row that incoming confirms, if
// any, and returns its local id.
func (t *Thread) takePendingLocked(incoming models.Message) (string, bool) {
	if incoming.ClientNonce == "" || incoming.SenderID != t.viewer.ID {
		return "", false
	}
	localID, ok := t.pending[incoming.ClientNonce]
	if !ok {
		return "", false
	}
	delete(t.pending, incoming.ClientNonce)
	if i := indexOf(t.msgs, localID); i >= 0 {
		t.msgs = removeAt(t.msgs, i)
	}
	return localID, true
}

// storedNonceLocked reports whether a stored row from senderID already
// carries nonce.
func (t *Thread) storedNonceLocked(nonce, senderID string) bool {
	for i := range t.msgs {
		m := &t.msgs[i]
		if m.ClientNonce == nonce && m.SenderID == senderID && !strings.HasPrefix(m.ID, localIDPrefix) {
			return true
		}
	}
	return false
}

func (t *Thread) handleStatus(gen uint64, st Status) {
	switch st {
	case StatusDisconnected:
		t.setState(gen, StateReconnecting)
	case StatusReconnected:
		t.mu.Lock()
		if t.gen != gen || t.state == StateIdle {
			t.mu.Unlock()
			return
		}
		ctx := t.ctx
		t.resyncs++
		seq := t.resyncs
		t.wg.Add(1)
		t.mu.Unlock()

		t.setState(gen, StateReconnecting)
		go t.resync(ctx, gen, seq)
	}
}

func (t *Thread) setState(gen uint64, s State) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.gen != gen || t.state == StateIdle || t.state == s {
		t.mu.Unlock()
		return
	}
	t.state = s
	t.mu.Unlock()

	t.listener(Update{Kind: UpdateStatus, Key: t.key, State: s})
}

// resync re-reads the conversation after a reconnect and reconciles it
// with local state, since events sent while disconnected may be lost. It
// keeps retrying with capped backoff, so the thread always leaves
// StateReconnecting unless it is closed first.
func (t *Thread) resync(ctx context.Context, gen, seq uint64) {
	defer t.wg.Done()

	var history []models.Message
	for attempt := 1; ; attempt++ {
		if !t.resyncCurrent(gen, seq) {
			return
		}
		var err error
		history, err = t.history.ListByConversation(ctx, t.key)
		if ctx.Err() != nil {
			return
		}
		metrics.RecordResync(err)
		if err == nil {
			break
		}
		logging.Warn().Err(err).Str("conversation_id", t.key).Int("attempt", attempt).Msg("Thread resync failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(resyncDelay(attempt)):
		}
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.gen != gen || t.state == StateIdle || t.resyncs != seq {
		t.mu.Unlock()
		return
	}
	before := make(map[string]struct{}, len(t.msgs))
	for i := range t.msgs {
		before[t.msgs[i].ID] = struct{}{}
	}
	t.msgs = reconcile(t.msgs, history, t.pending, t.viewer.ID)
	t.state = StateSubscribed
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.listener(snapshot)
	t.listener(Update{Kind: UpdateStatus, Key: t.key, State: StateSubscribed})

	if t.onInbound == nil {
		return
	}
	for i := range snapshot.Messages {
		m := snapshot.Messages[i]
		if _, known := before[m.ID]; known || m.SenderID == t.viewer.ID || m.ReadAt != nil {
			continue
		}
		t.onInbound(m)
	}
}

func (t *Thread) resyncCurrent(gen, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen == gen && t.state != StateIdle && t.resyncs == seq
}

func resyncDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * resyncBackoff
	if d > resyncMaxBackoff {
		return resyncMaxBackoff
	}
	return d
}

func (t *Thread) snapshotLocked() Update {
	return Update{
		Kind:     UpdateSnapshot,
		Key:      t.key,
		Messages: append([]models.Message(nil), t.msgs...),
		State:    t.state,
	}
}
