// Package liveclient keeps a local view of one conversation synchronized
// with the server. It seeds the view from a snapshot fetch, then applies
// row-level change events from a live transport; when no transport is
// available it falls back to polling. The two modes are mutually
// exclusive.
package liveclient

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/domain/chat"
	"flock-messaging/internal/domain/user"
	"flock-messaging/pkg/events"
	"flock-messaging/pkg/logger"
)

type State string

const (
	StateIdle        State = "idle"
	StateSubscribing State = "subscribing"
	StateLive        State = "live"
	StatePolling     State = "polling"
)

const (
	DefaultSnapshotLimit = 200
	DefaultPollInterval  = 4 * time.Second
)

// Fetcher produces a snapshot of the conversation as the viewer sees it.
type Fetcher interface {
	Snapshot(ctx context.Context, conversationID uuid.UUID, limit int) (Snapshot, error)
}

// Snapshot is one fetch of a conversation: the counterpart's profile and
// the visible message window.
type Snapshot struct {
	Other    user.Summary  `json:"other"`
	Messages []MessageView `json:"messages"`
}

// Transport delivers change feed events for a conversation plus the
// shared reaction stream. Delivery stops when ctx is cancelled; the
// channel itself stays open, so consumers must watch ctx.Done.
type Transport interface {
	Events(ctx context.Context, conversationID uuid.UUID) (<-chan events.Event, error)
}

// MessageView is one message with its reaction state as the viewer sees
// it.
type MessageView struct {
	Message    chat.Message   `json:"message"`
	Reactions  map[string]int `json:"reactions,omitempty"`
	MyReaction string         `json:"my_reaction,omitempty"`
}

// Client reconciles snapshots with live events. All exported methods are
// safe for concurrent use.
type Client struct {
	fetcher       Fetcher
	transport     Transport
	viewer        uuid.UUID
	pollInterval  time.Duration
	snapshotLimit int

	mu       sync.Mutex
	state    State
	selected uuid.UUID
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Per-conversation message and counterpart caches survive switching
	// away and back.
	caches map[uuid.UUID][]MessageView
	others map[uuid.UUID]user.Summary

	// Messages the viewer deleted locally before the server confirmed.
	// A stale snapshot that still carries one of these must not
	// resurrect it.
	pendingDeleted map[uuid.UUID]bool
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithSnapshotLimit(limit int) Option {
	return func(c *Client) { c.snapshotLimit = limit }
}

// New builds a client for one viewer. A nil transport selects polling
// mode.
func New(fetcher Fetcher, transport Transport, viewer uuid.UUID, opts ...Option) *Client {
	c := &Client{
		fetcher:        fetcher,
		transport:      transport,
		viewer:         viewer,
		pollInterval:   DefaultPollInterval,
		snapshotLimit:  DefaultSnapshotLimit,
		state:          StateIdle,
		caches:         make(map[uuid.UUID][]MessageView),
		others:         make(map[uuid.UUID]user.Summary),
		pendingDeleted: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Selected() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Messages returns a copy of the cached view for the conversation.
func (c *Client) Messages(conversationID uuid.UUID) []MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()

	cached := c.caches[conversationID]
	out := make([]MessageView, len(cached))
	copy(out, cached)
	return out
}

// Other returns the cached counterpart profile for the conversation. The
// second result is false until a snapshot has been applied.
func (c *Client) Other(conversationID uuid.UUID) (user.Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	other, ok := c.others[conversationID]
	return other, ok
}

// Select switches the client to a conversation. Any in-flight snapshot
// fetch or event loop for the previous selection is cancelled first; a
// late response from it can no longer touch the cache because the
// selection is re-checked at apply time.
func (c *Client) Select(ctx context.Context, conversationID uuid.UUID) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.selected = conversationID
	c.state = StateSubscribing
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(runCtx, conversationID)
}

// Close stops any running fetch or event loop.
func (c *Client) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.selected = uuid.Nil
	c.state = StateIdle
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Client) run(ctx context.Context, conversationID uuid.UUID) {
	defer c.wg.Done()

	c.refresh(ctx, conversationID)

	if c.transport == nil {
		c.setState(conversationID, StatePolling)
		c.pollLoop(ctx, conversationID)
		return
	}

	eventCh, err := c.transport.Events(ctx, conversationID)
	if err != nil {
		if log := logger.GetGlobalLogger(); log != nil {
			log.Warnf("live subscribe failed, falling back to polling: %v", err)
		}
		c.setState(conversationID, StatePolling)
		c.pollLoop(ctx, conversationID)
		return
	}

	c.setState(conversationID, StateLive)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			c.Apply(conversationID, event)
		}
	}
}

func (c *Client) pollLoop(ctx context.Context, conversationID uuid.UUID) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx, conversationID)
		}
	}
}

// refresh fetches a snapshot and installs it, unless the selection moved
// on while the fetch was in flight.
func (c *Client) refresh(ctx context.Context, conversationID uuid.UUID) {
	snapshot, err := c.fetcher.Snapshot(ctx, conversationID, c.snapshotLimit)
	if err != nil {
		if ctx.Err() == nil {
			if log := logger.GetGlobalLogger(); log != nil {
				log.Warnf("snapshot fetch failed: %v", err)
			}
		}
		return
	}
	c.ApplySnapshot(conversationID, snapshot)
}

// ApplySnapshot installs a fetched snapshot. The conversation id is
// compared against the current selection at apply time, so a response
// that outlived a conversation switch is dropped. Messages the viewer
// already deleted locally are filtered out even if the snapshot is stale
// enough to still contain them.
func (c *Client) ApplySnapshot(conversationID uuid.UUID, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected != conversationID {
		return
	}

	filtered := make([]MessageView, 0, len(snapshot.Messages))
	for _, view := range snapshot.Messages {
		if c.pendingDeleted[view.Message.ID] {
			continue
		}
		filtered = append(filtered, view)
	}
	c.caches[conversationID] = filtered
	c.others[conversationID] = snapshot.Other
}

// MarkDeletedLocally records an optimistic local delete. The message
// disappears from the cache immediately and stays excluded from future
// snapshots.
func (c *Client) MarkDeletedLocally(messageID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pendingDeleted[messageID] = true
	for convID, cached := range c.caches {
		c.caches[convID] = removeMessage(cached, messageID)
	}
}

func (c *Client) setState(conversationID uuid.UUID, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == conversationID {
		c.state = state
	}
}

// Apply routes one change feed event into the cache.
func (c *Client) Apply(conversationID uuid.UUID, event events.Event) {
	switch event.Table {
	case "messages":
		c.ApplyMessageEvent(conversationID, event)
	case "message_reactions":
		c.ApplyReactionEvent(conversationID, event)
	}
}

// ApplyMessageEvent reconciles one message row change. Inserts are
// dropped when the row is tombstoned, hides the viewer, was deleted
// locally, or is already cached. Updates that turn a message invisible
// remove it.
func (c *Client) ApplyMessageEvent(conversationID uuid.UUID, event events.Event) {
	var m chat.Message
	if err := json.Unmarshal(event.New, &m); err != nil {
		return
	}
	if m.ConversationID != conversationID {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected != conversationID {
		return
	}
	cached := c.caches[conversationID]

	switch event.Type {
	case events.EventInsert:
		if !m.VisibleTo(c.viewer) || c.pendingDeleted[m.ID] {
			return
		}
		if indexOf(cached, m.ID) >= 0 {
			return
		}
		c.caches[conversationID] = append(cached, MessageView{Message: m})

	case events.EventUpdate:
		if !m.VisibleTo(c.viewer) {
			c.caches[conversationID] = removeMessage(cached, m.ID)
			return
		}
		if i := indexOf(cached, m.ID); i >= 0 {
			cached[i].Message = m
		}
	}
}

// ApplyReactionEvent adjusts per-emoji counters on the cached message.
// Events for messages outside the cache are ignored; the next snapshot
// carries their state anyway.
func (c *Client) ApplyReactionEvent(conversationID uuid.UUID, event events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected != conversationID {
		return
	}
	cached := c.caches[conversationID]

	switch event.Type {
	case events.EventInsert:
		r, ok := decodeReaction(event.New)
		if !ok {
			return
		}
		i := indexOf(cached, r.MessageID)
		if i < 0 {
			return
		}
		incrementReaction(&cached[i], r.Emoji)
		if r.UserID == c.viewer {
			cached[i].MyReaction = r.Emoji
		}

	case events.EventDelete:
		r, ok := decodeReaction(event.Old)
		if !ok {
			return
		}
		i := indexOf(cached, r.MessageID)
		if i < 0 {
			return
		}
		decrementReaction(&cached[i], r.Emoji)
		if r.UserID == c.viewer {
			cached[i].MyReaction = ""
		}

	case events.EventUpdate:
		old, okOld := decodeReaction(event.Old)
		updated, okNew := decodeReaction(event.New)
		if !okOld || !okNew {
			return
		}
		i := indexOf(cached, updated.MessageID)
		if i < 0 {
			return
		}
		decrementReaction(&cached[i], old.Emoji)
		incrementReaction(&cached[i], updated.Emoji)
		if updated.UserID == c.viewer {
			cached[i].MyReaction = updated.Emoji
		}
	}
}

func decodeReaction(raw json.RawMessage) (chat.MessageReaction, bool) {
	var r chat.MessageReaction
	if err := json.Unmarshal(raw, &r); err != nil {
		return chat.MessageReaction{}, false
	}
	return r, true
}

func incrementReaction(view *MessageView, emoji string) {
	if view.Reactions == nil {
		view.Reactions = make(map[string]int)
	}
	view.Reactions[emoji]++
}

// decrementReaction floors at zero and drops the key so an emoji with no
// reactions left disappears instead of showing zero.
func decrementReaction(view *MessageView, emoji string) {
	if view.Reactions == nil {
		return
	}
	if view.Reactions[emoji] <= 1 {
		delete(view.Reactions, emoji)
		return
	}
	view.Reactions[emoji]--
}

func indexOf(cached []MessageView, id uuid.UUID) int {
	for i := range cached {
		if cached[i].Message.ID == id {
			return i
		}
	}
	return -1
}

func removeMessage(cached []MessageView, id uuid.UUID) []MessageView {
	i := indexOf(cached, id)
	if i < 0 {
		return cached
	}
	return append(cached[:i], cached[i+1:]...)
}
