package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/event"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alarmdesk_ws_clients",
		Help: "Dashboards connected to the live event stream.",
	})
	droppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmdesk_ws_dropped_messages_total",
		Help: "Live events dropped because a dashboard fell behind.",
	})
)

const (
	sendBuffer   = 256
	writeTimeout = 5 * time.Second
	// maxMissed consecutive drops mark a dashboard as stalled; it is
	// disconnected so it can reconnect and reload current state.
	maxMissed = 32
)

// Client is one connected dashboard.
type Client struct {
	conn    *websocket.Conn
	remote  string
	filters []string // event.Match patterns; empty means every topic
	send    chan Message
	logger  *zap.Logger

	missed int // consecutive drops, guarded by the hub lock
}

func (c *Client) wants(msg Message) bool {
	if len(c.filters) == 0 {
		return true
	}
	for _, f := range c.filters {
		if event.Match(f, msg.Type) {
			return true
		}
	}
	return false
}

// Hub fans live events out to connected dashboards.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	connectedClients.Inc()
	h.logger.Debug("dashboard connected", zap.String("remote", c.remote), zap.Strings("filters", c.filters))
}

// Unregister removes a client and closes its send channel. Safe to call
// more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		connectedClients.Dec()
		h.logger.Debug("dashboard disconnected", zap.String("remote", c.remote))
	}
}

// Broadcast queues msg for every client whose filters match it. A client
// with a full buffer misses the message; one that keeps missing them is
// dropped from the hub.
func (h *Hub) Broadcast(msg Message) {
	var stalled []*Client

	h.mu.Lock()
	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
			c.missed = 0
		default:
			c.missed++
			droppedMessages.Inc()
			if c.missed >= maxMissed {
				stalled = append(stalled, c)
			}
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.logger.Warn("dropping stalled dashboard",
			zap.String("remote", c.remote),
			zap.Int("missed", maxMissed))
		h.Unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writePump writes queued messages until the send channel closes. A closed
// channel while the connection is still up means the hub evicted the client.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				if c.conn != nil {
					_ = c.conn.Close(websocket.StatusPolicyViolation, "too slow")
				}
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.logger.Debug("websocket write failed", zap.String("remote", c.remote), zap.Error(err))
				return
			}
		}
	}
}

// readPump discards inbound frames until the connection ends.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}
