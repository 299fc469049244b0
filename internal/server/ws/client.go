package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// topics is a client's subscription set. Entries ending in "*" match by
// prefix.
type topics struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func newTopics(initial []string) *topics {
	t := &topics{set: make(map[string]struct{}, len(initial))}
	t.add(initial)
	return t
}

func (t *topics) add(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		t.set[n] = struct{}{}
	}
}

func (t *topics) remove(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range names {
		delete(t.set, n)
	}
}

func (t *topics) match(channel string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.set[channel]; ok {
		return true
	}
	for name := range t.set {
		if prefix, wild := strings.CutSuffix(name, "*"); wild && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// control is what a client sends to change its subscriptions.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	topics *topics
}

func newClient(h *Hub, conn *websocket.Conn, id string) *client {
	return &client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: newTopics(defaultTopics),
	}
}

// greet queues the status frame. It must run before the client joins.
func (c *client) greet() {
	data, err := json.Marshal(map[string]any{
		"client_id":  c.id,
		"mode":       c.hub.cfg.Mode,
		"started_at": c.hub.cfg.StartedAt,
	})
	if err != nil {
		return
	}
	payload, err := c.hub.envelope(channelStatus, data)
	if err != nil {
		return
	}
	c.send <- payload
}

func (c *client) leave() {
	select {
	case c.hub.leaves <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// readLoop applies subscription changes until the connection fails.
func (c *client) readLoop() {
	defer c.leave()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var ctl control
		if json.Unmarshal(msg, &ctl) != nil {
			continue
		}
		switch ctl.Action {
		case "subscribe":
			c.topics.add(ctl.Channels)
		case "unsubscribe":
			c.topics.remove(ctl.Channels)
		}
	}
}

// writeLoop drains send as text frames and keeps the connection alive with
// pings. A closed send channel ends the connection.
func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
