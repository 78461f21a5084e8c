// Package ws streams alarm, equipment and sync events to dashboards over
// WebSocket.
package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Streams are the bus patterns forwarded to dashboards. Clients narrow them
// further with ?topics=, which takes exact topics or patterns.
var Streams = []string{"alarm.*", "equipment.*", "sync.*"}

// Handler provides the WebSocket endpoint for live updates.
type Handler struct {
	hub    *Hub
	logger *zap.Logger
	unsubs []func()
}

// Compile-time check that Handler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*Handler)(nil)

// NewHandler creates a WebSocket handler and subscribes it to bus events.
// bus may be nil, in which case nothing is ever broadcast.
func NewHandler(bus plugin.Subscriber, logger *zap.Logger) *Handler {
	h := &Handler{
		hub:    NewHub(logger),
		logger: logger,
	}
	if bus != nil {
		for _, pattern := range Streams {
			h.unsubs = append(h.unsubs, bus.Subscribe(pattern, h.forward))
		}
		h.logger.Info("streaming bus events to dashboards", zap.Strings("patterns", Streams))
	}
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/ws/events", h.handleEvents)
}

// Close unsubscribes from the bus.
func (h *Handler) Close() {
	for _, u := range h.unsubs {
		u()
	}
	h.unsubs = nil
}

// Hub returns the handler's hub.
func (h *Handler) Hub() *Hub { return h.hub }

func (h *Handler) forward(_ context.Context, event plugin.Event) {
	h.hub.Broadcast(Message{
		Type:      event.Topic,
		Source:    event.Source,
		Timestamp: event.Timestamp,
		Data:      event.Payload,
	})
}

// handleEvents upgrades the connection and streams events. An optional
// comma-separated topics query parameter narrows what the client receives.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:    conn,
		remote:  r.RemoteAddr,
		filters: parseTopics(r.URL.Query().Get("topics")),
		send:    make(chan Message, sendBuffer),
		logger:  h.logger,
	}
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	client.readPump(ctx)
	cancel()
	<-done

	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
}

// parseTopics splits a comma-separated filter list, dropping blanks and
// duplicates.
func parseTopics(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
