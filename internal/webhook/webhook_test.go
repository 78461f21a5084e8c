package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/HerbHall/alarmdesk/pkg/plugin/plugintest"
)

func newModule(t *testing.T, settings map[string]any) *Module {
	t.Helper()
	v := viper.New()
	v.Set("retry_wait", "1ms")
	for k, val := range settings {
		v.Set(k, val)
	}
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Config: config.New(v)}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m
}

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestSubscriptions(t *testing.T) {
	topics := make(map[string]bool)
	for _, s := range New().Subscriptions() {
		topics[s.Topic] = true
	}
	for _, want := range []string{
		reconcile.TopicAlarmCreated,
		reconcile.TopicAlarmAcknowledged,
		reconcile.TopicAlarmResolved,
		reconcile.TopicEquipmentOffline,
		reconcile.TopicSyncFailed,
	} {
		if !topics[want] {
			t.Errorf("missing subscription for topic %q", want)
		}
	}
}

func TestHandleEvent_DeliversWebhook(t *testing.T) {
	var mu sync.Mutex
	var received []Payload
	var headers http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		received = append(received, p)
		headers = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := newModule(t, map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Token": "abc"},
	})
	m.handleEvent(context.Background(), plugin.Event{
		Topic:     reconcile.TopicAlarmCreated,
		Source:    "sync",
		Timestamp: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		Payload:   &models.Alarm{ID: 9, Title: "Disk full"},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d payloads, want 1", len(received))
	}
	p := received[0]
	if p.Event != reconcile.TopicAlarmCreated || p.Source != "sync" {
		t.Errorf("payload = %+v", p)
	}
	if p.Timestamp != "2026-05-04T10:00:00Z" {
		t.Errorf("timestamp = %q", p.Timestamp)
	}
	data, ok := p.Data.(map[string]any)
	if !ok || data["title"] != "Disk full" {
		t.Errorf("data = %#v", p.Data)
	}
	if got := headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := headers.Get("User-Agent"); got != "AlarmDesk-Webhook/0.1" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := headers.Get("X-Token"); got != "abc" {
		t.Errorf("X-Token = %q", got)
	}
}

func TestHandleEvent_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := newModule(t, map[string]any{"url": srv.URL, "retry_count": 3})
	m.handleEvent(context.Background(), plugin.Event{Topic: reconcile.TopicSyncFailed})

	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestHandleEvent_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	m := newModule(t, map[string]any{"url": srv.URL, "retry_count": 3})
	m.handleEvent(context.Background(), plugin.Event{Topic: reconcile.TopicAlarmResolved})

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestHandleEvent_Disabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	m := newModule(t, map[string]any{"url": srv.URL, "enabled": false})
	m.handleEvent(context.Background(), plugin.Event{Topic: reconcile.TopicAlarmCreated})

	empty := newModule(t, nil)
	empty.handleEvent(context.Background(), plugin.Event{Topic: reconcile.TopicAlarmCreated})

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestHandleEvent_UnreachableDoesNotPanic(t *testing.T) {
	m := newModule(t, map[string]any{"url": "http://127.0.0.1:1", "retry_count": 0, "timeout": "200ms"})
	m.handleEvent(context.Background(), plugin.Event{Topic: reconcile.TopicAlarmCreated})
}

func TestValidateConfig(t *testing.T) {
	if err := newModule(t, nil).ValidateConfig(); err != nil {
		t.Errorf("defaults: %v", err)
	}
	if err := newModule(t, map[string]any{"retry_count": -1}).ValidateConfig(); err == nil {
		t.Error("expected error for negative retry_count")
	}
}
