package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/event"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

func newTestClient(remote string, topics ...string) *Client {
	return &Client{
		remote:  remote,
		filters: parseTopics(strings.Join(topics, ",")),
		send:    make(chan Message, sendBuffer),
		logger:  zap.NewNop(),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())
	a := newTestClient("a")
	b := newTestClient("b")

	hub.Register(a)
	hub.Register(b)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("ClientCount() = %d, want 2", got)
	}

	hub.Unregister(a)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}
	if _, ok := <-a.send; ok {
		t.Error("send channel should be closed after Unregister")
	}

	// Second unregister is a no-op and must not panic on a closed channel.
	hub.Unregister(a)
}

func TestBroadcastTopicFilter(t *testing.T) {
	hub := NewHub(zap.NewNop())
	all := newTestClient("all")
	alarmsOnly := newTestClient("alarms", reconcile.TopicAlarmCreated)
	hub.Register(all)
	hub.Register(alarmsOnly)

	hub.Broadcast(Message{Type: reconcile.TopicAlarmCreated})
	hub.Broadcast(Message{Type: reconcile.TopicSyncFailed})

	if got := len(all.send); got != 2 {
		t.Errorf("unfiltered client got %d messages, want 2", got)
	}
	if got := len(alarmsOnly.send); got != 1 {
		t.Fatalf("filtered client got %d messages, want 1", got)
	}
	if msg := <-alarmsOnly.send; msg.Type != reconcile.TopicAlarmCreated {
		t.Errorf("filtered client got %q", msg.Type)
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := &Client{remote: "slow", send: make(chan Message, 1), logger: zap.NewNop()}
	hub.Register(c)

	hub.Broadcast(Message{Type: "x"})
	hub.Broadcast(Message{Type: "y"})

	if got := len(c.send); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

func TestBroadcastPatternFilter(t *testing.T) {
	hub := NewHub(zap.NewNop())
	syncOnly := newTestClient("sync", "sync.*")
	hub.Register(syncOnly)

	hub.Broadcast(Message{Type: reconcile.TopicAlarmCreated})
	hub.Broadcast(Message{Type: reconcile.TopicAlarmsSynced})
	hub.Broadcast(Message{Type: reconcile.TopicSyncFailed})

	if got := len(syncOnly.send); got != 2 {
		t.Errorf("sync.* client got %d messages, want 2", got)
	}
}

func TestBroadcastEvictsStalledClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	stalled := &Client{remote: "stalled", send: make(chan Message, 1), logger: zap.NewNop()}
	hub.Register(stalled)

	for i := 0; i <= maxMissed; i++ {
		hub.Broadcast(Message{Type: reconcile.TopicAlarmCreated})
	}

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("ClientCount() = %d, want stalled client evicted", got)
	}
	<-stalled.send // the one message that fit
	if _, ok := <-stalled.send; ok {
		t.Error("send channel should be closed after eviction")
	}
}

func TestBroadcastDeliveryResetsMissed(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := &Client{remote: "flaky", send: make(chan Message, 1), logger: zap.NewNop()}
	hub.Register(c)

	for round := 0; round < 3; round++ {
		for i := 0; i < maxMissed-1; i++ {
			hub.Broadcast(Message{Type: "x"})
		}
		<-c.send
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want client kept after catching up", got)
	}
}

func TestConcurrentBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop())
	clients := make([]*Client, 5)
	for i := range clients {
		clients[i] = newTestClient("c")
		hub.Register(clients[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.Broadcast(Message{Type: reconcile.TopicAlarmCreated})
		}()
	}
	wg.Wait()

	for _, c := range clients {
		if got := len(c.send); got != 20 {
			t.Errorf("client got %d messages, want 20", got)
		}
	}
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"alarm.created", 1},
		{" alarm.created , sync.failed ,", 2},
		{"alarm.*,alarm.*", 1},
	}
	for _, tt := range tests {
		if got := len(parseTopics(tt.raw)); got != tt.want {
			t.Errorf("parseTopics(%q) = %d topics, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestHandlerStreamsBusEvents(t *testing.T) {
	bus := event.NewBus(zap.NewNop())
	h := NewHandler(bus, zap.NewNop())
	t.Cleanup(h.Close)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/events?topics=" + reconcile.TopicAlarmCreated
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server side to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for h.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = bus.Publish(ctx, plugin.Event{Topic: reconcile.TopicSyncFailed, Source: "sync", Timestamp: time.Now()})
	_ = bus.Publish(ctx, plugin.Event{
		Topic:     reconcile.TopicAlarmCreated,
		Source:    "sync",
		Timestamp: time.Now(),
		Payload:   map[string]string{"id": "a1"},
	})

	var msg struct {
		Type   string            `json:"type"`
		Source string            `json:"source"`
		Data   map[string]string `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if msg.Type != reconcile.TopicAlarmCreated {
		t.Errorf("type = %q, want %q", msg.Type, reconcile.TopicAlarmCreated)
	}
	if msg.Source != "sync" || msg.Data["id"] != "a1" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHandlerWithoutBus(t *testing.T) {
	h := NewHandler(nil, zap.NewNop())
	h.Close()
	if h.Hub().ClientCount() != 0 {
		t.Error("expected no clients")
	}
}
