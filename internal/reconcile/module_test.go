package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/internal/event"
	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/statuscache"
	"github.com/HerbHall/alarmdesk/internal/testutil"
	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/HerbHall/alarmdesk/pkg/plugin/plugintest"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func TestLoadConfig(t *testing.T) {
	v := viper.New()
	v.Set("interval", "90s")
	v.Set("lookback", "6h")
	v.Set("isolate_record_errors", true)
	v.Set("ack_attempts", 5)
	v.Set("zabbix.url", "https://zbx.example/api_jsonrpc.php")
	v.Set("zabbix.username", "api")
	v.Set("host_filter", map[string]any{"groupids": []string{"2"}})

	cfg := loadConfig(config.New(v))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Lookback)
	assert.True(t, cfg.IsolateRecordErrors)
	assert.Equal(t, 5, cfg.AckAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.AckDelay)
	assert.Equal(t, "api", cfg.ZabbixUsername)
	assert.Contains(t, cfg.HostFilter, "groupids")

	assert.Equal(t, DefaultConfig(), loadConfig(nil))
}

func TestValidateConfig(t *testing.T) {
	m := New()
	m.cfg = DefaultConfig()
	assert.NoError(t, m.ValidateConfig())

	m.cfg.Interval = 10 * time.Millisecond
	assert.Error(t, m.ValidateConfig())

	m.cfg = DefaultConfig()
	m.cfg.ZabbixURL = "https://zbx"
	assert.Error(t, m.ValidateConfig())
}

type moduleHarness struct {
	module   *Module
	upstream *fakeUpstream
	store    *inventory.Store
	bus      *event.Bus
}

func newModule(t *testing.T) *moduleHarness {
	t.Helper()
	db := testutil.NewStore(t)
	bus := event.NewBus(zap.NewNop())
	up := &fakeUpstream{}
	m := New(WithClient(up), WithStatusCache(statuscache.NewMemory()))
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger: zaptest.NewLogger(t),
		Store:  db,
		Bus:    bus,
	}))
	return &moduleHarness{module: m, upstream: up, store: inventory.New(db), bus: bus}
}

func waitFor(t *testing.T, ch <-chan plugin.Event) plugin.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return plugin.Event{}
	}
}

func TestModule_RunAllRecordsStatus(t *testing.T) {
	h := newModule(t)
	h.upstream.hosts = []zabbix.Host{host("h1", "0")}
	h.upstream.events = []zabbix.Event{problemEvent("e1", "h1", "4", zabbix.ValueProblem)}

	done := make(chan plugin.Event, 4)
	h.bus.Subscribe(TopicAlarmsSynced, func(_ context.Context, e plugin.Event) { done <- e })

	results, err := h.module.Run(context.Background(), KindAll)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, KindEquipment, results[0].Kind)
	assert.Equal(t, 1, results[0].Created)
	assert.Equal(t, KindAlarms, results[1].Kind)
	assert.Equal(t, 1, results[1].Created)

	ev := waitFor(t, done)
	assert.Equal(t, "sync", ev.Source)

	entries, err := h.module.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, statuscache.OutcomeSuccess, e.Outcome)
		assert.NotEmpty(t, e.RunID)
	}
	assert.Equal(t, "healthy", h.module.Health(context.Background()).Status)
}

func TestModule_FailedPassDegradesHealth(t *testing.T) {
	h := newModule(t)
	h.upstream.hostErr = &zabbix.UpstreamError{Method: "host.get", Err: errors.New("refused")}

	failed := make(chan plugin.Event, 1)
	h.bus.Subscribe(TopicSyncFailed, func(_ context.Context, e plugin.Event) { failed <- e })

	results, err := h.module.Run(context.Background(), KindAll)
	require.Error(t, err)
	assert.Empty(t, results)

	ev := waitFor(t, failed)
	payload, ok := ev.Payload.(FailedPayload)
	require.True(t, ok)
	assert.Equal(t, KindEquipment, payload.Kind)

	health := h.module.Health(context.Background())
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, statuscache.OutcomeFailure, health.Details[KindEquipment])
}

func TestModule_UnknownKind(t *testing.T) {
	h := newModule(t)
	_, err := h.module.Run(context.Background(), "widgets")
	assert.Error(t, err)
}

func TestModule_StartStop(t *testing.T) {
	h := newModule(t)
	h.module.cfg.Interval = time.Hour

	synced := make(chan plugin.Event, 1)
	h.bus.Subscribe(TopicEquipmentSynced, func(_ context.Context, e plugin.Event) { synced <- e })

	require.NoError(t, h.module.Start(context.Background()))
	waitFor(t, synced)
	require.NoError(t, h.module.Stop(context.Background()))
}

func TestHandlers(t *testing.T) {
	h := newModule(t)
	h.upstream.hosts = []zabbix.Host{host("h1", "0")}

	mux := http.NewServeMux()
	for _, r := range h.module.Routes() {
		mux.HandleFunc(r.Method+" "+r.Path, r.Handler)
	}

	t.Run("run equipment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/equipment", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var res Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.Equal(t, 1, res.Synced)
		assert.Equal(t, 1, res.Created)
	})

	t.Run("run all", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/all", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var res []Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
		assert.Len(t, res, 2)
	})

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"passes"`)
	})

	t.Run("test connection", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test-connection", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "7.0.0", body["version"])
	})

	t.Run("upstream failure", func(t *testing.T) {
		h.upstream.mu.Lock()
		h.upstream.eventErr = &zabbix.UpstreamError{Method: "event.get", Err: errors.New("boom")}
		h.upstream.mu.Unlock()

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/alarms", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotConfigured, http.StatusServiceUnavailable},
		{&zabbix.AuthError{Err: errors.New("bad password")}, http.StatusBadGateway},
		{&zabbix.UpstreamError{Method: "host.get", Err: errors.New("x")}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := ErrorStatus(tc.err); got != tc.want {
			t.Errorf("ErrorStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestModule_TestConnectionNotConfigured(t *testing.T) {
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}))
	_, err := m.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "degraded", m.Health(context.Background()).Status)
}
