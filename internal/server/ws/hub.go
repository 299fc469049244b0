// Package ws pushes order book, order and dashboard updates to browser
// clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeview/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Channel names. Book updates are published per symbol as "book:{symbol}".
const (
	ChannelOrders    = "orders"
	ChannelDashboard = "dashboard"
	channelStatus    = "status"
	bookPrefix       = "book:"
)

// BookChannel returns the channel carrying updates for symbol.
func BookChannel(symbol string) string { return bookPrefix + symbol }

// defaultTopics are applied to every new client.
var defaultTopics = []string{bookPrefix + "*", ChannelOrders, ChannelDashboard}

// queueSize bounds the hub's pending broadcast frames.
const queueSize = 256

// Envelope is the JSON text frame sent to clients.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      time.Time       `json:"ts"`
}

// Config captures metadata reported to clients on connect.
type Config struct {
	Mode           string
	StartedAt      time.Time
	AllowedOrigins []string
	// BridgeChannels are signal bus channels forwarded to clients under the
	// same name.
	BridgeChannels []string
}

type frame struct {
	channel string
	payload []byte
}

// Hub fans frames out to connected clients subscribed to their channel.
// Client membership is owned by the Run goroutine; the mutex only serves
// ClientCount.
type Hub struct {
	cfg      Config
	bus      domain.SignalBus
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	frames chan frame
	joins  chan *client
	leaves chan *client
	done   chan struct{}

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates a Hub. bus may be nil, in which case nothing is bridged
// and only Broadcast feeds clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	h := &Hub{
		cfg:     cfg,
		bus:     bus,
		logger:  logger.With(slog.String("component", "ws_hub")),
		now:     time.Now,
		frames:  make(chan frame, queueSize),
		joins:   make(chan *client),
		leaves:  make(chan *client),
		done:    make(chan struct{}),
		clients: make(map[string]*client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Broadcast marshals v into an Envelope and queues it for channel. It never
// blocks; when the queue is full the frame is dropped.
func (h *Hub) Broadcast(channel string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("ws: marshal broadcast failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.publish(channel, data)
}

func (h *Hub) publish(channel string, data json.RawMessage) {
	payload, err := h.envelope(channel, data)
	if err != nil {
		return
	}
	select {
	case h.frames <- frame{channel: channel, payload: payload}:
	default:
		h.logger.Warn("ws: broadcast queue full, dropping frame", slog.String("channel", channel))
	}
}

func (h *Hub) envelope(channel string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{Channel: channel, Data: data, TS: h.now().UTC()})
}

// Run owns client membership and fan-out until ctx is cancelled. It must be
// called at most once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	if h.bus != nil {
		for _, ch := range h.cfg.BridgeChannels {
			go h.bridge(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return ctx.Err()
		case c := <-h.joins:
			h.add(c)
		case c := <-h.leaves:
			h.remove(c)
		case f := <-h.frames:
			h.fanout(f)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.String("client_id", c.id), slog.Int("total_clients", n))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.String("client_id", c.id), slog.Int("total_clients", n))
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// fanout never blocks on a slow client; its frame is dropped instead.
func (h *Hub) fanout(f frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.topics.match(f.channel) {
			continue
		}
		select {
		case c.send <- f.payload:
		default:
			h.logger.Warn("ws: dropping frame for slow client",
				slog.String("client_id", c.id),
				slog.String("channel", f.channel),
			)
		}
	}
}

// bridge forwards one signal bus channel to clients.
func (h *Hub) bridge(ctx context.Context, channel string) {
	in, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: bridging bus channel", slog.String("channel", channel))

	for data := range in {
		if json.Valid(data) {
			h.publish(channel, data)
		}
	}
	if ctx.Err() == nil {
		h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, uuid.NewString())
	// Queued before joining so Run never races it closing send.
	c.greet()

	select {
	case h.joins <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
