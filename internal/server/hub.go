package server

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flock-messaging/internal/services"
	"flock-messaging/pkg/events"
)

// Hub tracks connected clients and fans incoming change feed events out
// to them. Events arrive over redis pattern subscription on dm:* so every
// API instance sees writes made by its peers.
type Hub struct {
	clients    map[uuid.UUID]map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	subscriber events.Subscriber
	access     *services.Access
	limiter    *ConnectionRateLimiter
	logger     *WebSocketLogger
	mu         sync.RWMutex
	stopChan   chan struct{}
	cancel     context.CancelFunc
	isRunning  int32
}

// BroadcastMessage carries one change feed event to be delivered. A nil
// ConversationID means the event is unscoped and goes to every client.
type BroadcastMessage struct {
	ConversationID *uuid.UUID
	Channel        string
	Event          events.Event
}

// ServerFrame is the outbound wire shape
type ServerFrame struct {
	Type    string       `json:"type"`
	Channel string       `json:"channel"`
	Event   events.Event `json:"event"`
}

// ConnectionRateLimiter caps connection attempts per user per minute
type ConnectionRateLimiter struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	mu                 sync.Mutex
}

func NewConnectionRateLimiter() *ConnectionRateLimiter {
	return &ConnectionRateLimiter{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
	}
}

func (w *ConnectionRateLimiter) AllowConnection(userID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	valid := w.connectionsPerUser[userID][:0]
	for _, t := range w.connectionsPerUser[userID] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= 10 {
		w.connectionsPerUser[userID] = valid
		return false
	}

	w.connectionsPerUser[userID] = append(valid, now)
	return true
}

func NewHub(subscriber events.Subscriber, access *services.Access) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[string]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		broadcast:  make(chan *BroadcastMessage, 256),
		subscriber: subscriber,
		access:     access,
		limiter:    NewConnectionRateLimiter(),
		logger:     NewWebSocketLogger(),
		stopChan:   make(chan struct{}),
	}
}

// Run starts the Hub loop. Blocks until Stop.
func (h *Hub) Run() {
	atomic.StoreInt32(&h.isRunning, 1)
	defer atomic.StoreInt32(&h.isRunning, 0)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	if h.subscriber != nil {
		err := h.subscriber.PSubscribe(ctx, "dm:*", func(ctx context.Context, channel string, event events.Event) error {
			h.broadcast <- &BroadcastMessage{
				ConversationID: conversationFromChannel(channel),
				Channel:        channel,
				Event:          event,
			}
			return nil
		})
		if err != nil {
			h.logger.Error("event subscription failed", uuid.Nil, "", err)
		}
	}

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case <-h.stopChan:
			cancel()
			return
		}
	}
}

// conversationFromChannel pulls the conversation id out of a dm:<uuid>
// channel name. The shared reactions channel has no conversation scope.
func conversationFromChannel(channel string) *uuid.UUID {
	suffix := strings.TrimPrefix(channel, "dm:")
	id, err := uuid.Parse(suffix)
	if err != nil {
		return nil
	}
	return &id
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.limiter.AllowConnection(client.userID) {
		h.logger.Warn("connection rate limit exceeded", client.userID, client.clientID)
		client.conn.Close()
		return
	}

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[string]*Client)
	}

	const maxConnectionsPerUser = 10
	if len(h.clients[client.userID]) >= maxConnectionsPerUser {
		h.logger.Warn("max connections per user reached", client.userID, client.clientID)
		for id, c := range h.clients[client.userID] {
			h.removeClient(c)
			delete(h.clients[client.userID], id)
			break
		}
	}

	h.clients[client.userID][client.clientID] = client
	h.logger.Info("client connected", client.userID, client.clientID)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.userID]; ok {
		if _, ok := userClients[client.clientID]; ok {
			delete(userClients, client.clientID)
			h.removeClient(client)

			if len(userClients) == 0 {
				delete(h.clients, client.userID)
			}

			h.logger.Info("client disconnected", client.userID, client.clientID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	close(client.send)
	client.conn.Close()
}

func (h *Hub) handleBroadcast(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	frame := ServerFrame{Type: "event", Channel: msg.Channel, Event: msg.Event}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	for _, userClients := range h.clients {
		for _, client := range userClients {
			if msg.ConversationID != nil && !client.subscribed(*msg.ConversationID) {
				continue
			}
			select {
			case client.send <- data:
			default:
				h.logger.Warn("client send buffer full", client.userID, client.clientID)
			}
		}
	}
}

// Stop gracefully shuts down the Hub
func (h *Hub) Stop() {
	close(h.stopChan)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, userClients := range h.clients {
		for _, client := range userClients {
			h.removeClient(client)
		}
	}
	h.clients = make(map[uuid.UUID]map[string]*Client)
}
