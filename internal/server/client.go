package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Control message limits per minute
type RateLimits struct {
	MaxSubscribes   int
	MaxPingMessages int
}

var DefaultRateLimits = RateLimits{
	MaxSubscribes:   30,
	MaxPingMessages: 60,
}

// ClientRateLimiter tracks control message budgets per connection
type ClientRateLimiter struct {
	subscribeTokens int
	pingTokens      int
	lastRefill      time.Time
	mu              sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		subscribeTokens: DefaultRateLimits.MaxSubscribes,
		pingTokens:      DefaultRateLimits.MaxPingMessages,
		lastRefill:      time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(msgType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.subscribeTokens = DefaultRateLimits.MaxSubscribes
		rl.pingTokens = DefaultRateLimits.MaxPingMessages
		rl.lastRefill = now
	}

	switch msgType {
	case "subscribe", "unsubscribe":
		if rl.subscribeTokens > 0 {
			rl.subscribeTokens--
			return true
		}
	case "ping":
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	}
	return false
}

// Client is a single WebSocket connection. A client receives message
// events only for conversations it subscribed to; reaction events are
// fanned out unscoped and filtered client side.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       uuid.UUID
	clientID     string
	rateLimiter  *ClientRateLimiter
	lastActivity time.Time
	logger       WebSocketLogger

	mu            sync.RWMutex
	conversations map[uuid.UUID]bool
}

// ClientMessage is the inbound control frame
type ClientMessage struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, clientID string, logger WebSocketLogger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		userID:        userID,
		clientID:      clientID,
		conversations: make(map[uuid.UUID]bool),
		rateLimiter:   NewClientRateLimiter(),
		lastActivity:  time.Now(),
		logger:        logger,
	}
}

func (c *Client) subscribed(conversationID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conversations[conversationID]
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.userID, c.clientID, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.lastActivity = time.Now()

		if err := c.handleMessage(message); err != nil {
			c.logger.Error("websocket handle message failed", c.userID, c.clientID, err)
		}
	}
}

func (c *Client) handleMessage(message []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return err
	}

	if !c.rateLimiter.Allow(msg.Type) {
		c.logger.Warn("rate limit exceeded", c.userID, c.clientID, zap.String("msg_type", msg.Type))
		return nil
	}

	switch msg.Type {
	case "subscribe":
		return c.handleSubscribe(msg)
	case "unsubscribe":
		return c.handleUnsubscribe(msg)
	case "ping":
		return c.handlePing()
	default:
		c.logger.Warn("unknown message type", c.userID, c.clientID, zap.String("msg_type", msg.Type))
		return nil
	}
}

// handleSubscribe checks membership before attaching the client to the
// conversation's event stream.
func (c *Client) handleSubscribe(msg ClientMessage) error {
	if msg.ConversationID == uuid.Nil {
		return nil
	}

	if c.hub.access != nil {
		if err := c.hub.access.RequireParticipant(context.Background(), msg.ConversationID, c.userID); err != nil {
			c.logger.Warn("subscribe rejected", c.userID, c.clientID, zap.String("conversation_id", msg.ConversationID.String()))
			c.send <- []byte(`{"type":"error","error":"subscribe rejected"}`)
			return nil
		}
	}

	c.mu.Lock()
	c.conversations[msg.ConversationID] = true
	c.mu.Unlock()

	c.send <- []byte(`{"type":"subscribed","conversation_id":"` + msg.ConversationID.String() + `"}`)
	return nil
}

func (c *Client) handleUnsubscribe(msg ClientMessage) error {
	c.mu.Lock()
	delete(c.conversations, msg.ConversationID)
	c.mu.Unlock()
	return nil
}

func (c *Client) handlePing() error {
	c.send <- []byte(`{"type":"pong"}`)
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(c.lastActivity) > pongWait*2 {
				c.logger.Info("client idle timeout", c.userID, c.clientID)
				return
			}
		}
	}
}
