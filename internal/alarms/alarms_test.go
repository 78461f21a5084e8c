package alarms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/event"
	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/internal/testutil"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/HerbHall/alarmdesk/pkg/plugin/plugintest"
)

func TestContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

type testEnv struct {
	mux   *http.ServeMux
	store *inventory.Store
	bus   *event.Bus
	eq    *models.Equipment
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewStore(t)
	bus := event.NewBus(zap.NewNop())
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger: zap.NewNop(),
		Store:  db,
		Bus:    bus,
	}))
	mux := http.NewServeMux()
	for _, r := range m.Routes() {
		mux.HandleFunc(r.Method+" "+r.Path, r.Handler)
	}
	eq := testutil.NewEquipment()
	require.NoError(t, m.store.CreateEquipment(context.Background(), &eq))
	return &testEnv{mux: mux, store: m.store, bus: bus, eq: &eq}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, r)
	return rec
}

func (e *testEnv) seed(t *testing.T, opts ...func(*models.Alarm)) *models.Alarm {
	t.Helper()
	a := testutil.NewAlarm(e.eq.ID, opts...)
	require.NoError(t, e.store.CreateAlarm(context.Background(), &a))
	return &a
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHandleCreate(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, "POST", "/", `{"zabbix_event_id":"900","equipment_id":1,"alarm_type":"critical","severity":"high","title":"Link down"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	a := decode[models.Alarm](t, rec)
	assert.Equal(t, models.AlarmActive, a.Status)

	rec = env.do(t, "POST", "/", `{"zabbix_event_id":"900","equipment_id":1,"alarm_type":"critical","severity":"high","title":"again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, "POST", "/", `{"zabbix_event_id":"901","equipment_id":77,"alarm_type":"info","severity":"low","title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/", `{"zabbix_event_id":"902","equipment_id":1,"alarm_type":"loud","severity":"low","title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleList_Paginates(t *testing.T) {
	env := newEnv(t)
	for range 5 {
		env.seed(t)
	}
	env.seed(t, testutil.WithAlarmStatus(models.AlarmResolved))

	rec := env.do(t, "GET", "/?limit=2&skip=2&status=active", "")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[Page](t, rec)
	assert.Len(t, p.Items, 2)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 2, p.Size)
	assert.Equal(t, 3, p.Pages)

	rec = env.do(t, "GET", "/?equipment_id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, decode[Page](t, rec).Total)

	for _, bad := range []string{"/?status=nope", "/?alarm_type=loud", "/?equipment_id=x"} {
		rec = env.do(t, "GET", bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestHandleAcknowledge(t *testing.T) {
	env := newEnv(t)
	a := env.seed(t)

	acked := make(chan plugin.Event, 1)
	env.bus.Subscribe(reconcile.TopicAlarmAcknowledged, func(_ context.Context, e plugin.Event) { acked <- e })

	rec := env.do(t, "POST", "/1/acknowledge", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "actor is required")

	rec = env.do(t, "POST", "/1/acknowledge?acknowledged_by=bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Alarm](t, rec)
	assert.Equal(t, models.AlarmAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedBy)
	assert.Equal(t, "bob", *got.AcknowledgedBy)
	assert.NotNil(t, got.AcknowledgedAt)
	assert.Equal(t, a.ID, got.ID)

	select {
	case <-acked:
	case <-time.After(2 * time.Second):
		t.Fatal("no acknowledged event published")
	}

	rec = env.do(t, "POST", "/99/acknowledge?acknowledged_by=bob", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleResolveAndUpdate(t *testing.T) {
	env := newEnv(t)
	env.seed(t)

	rec := env.do(t, "POST", "/1/resolve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Alarm](t, rec)
	assert.Equal(t, models.AlarmResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)

	rec = env.do(t, "PUT", "/1", `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[models.Alarm](t, rec)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.AlarmResolved, got.Status)

	rec = env.do(t, "PUT", "/1", `{"status":"snoozed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "DELETE", "/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, "GET", "/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRecentAndTrendsBounds(t *testing.T) {
	env := newEnv(t)
	env.seed(t)

	tests := []struct {
		path string
		want int
	}{
		{"/recent/24", http.StatusOK},
		{"/recent/0", http.StatusBadRequest},
		{"/recent/169", http.StatusBadRequest},
		{"/recent/abc", http.StatusBadRequest},
		{"/trends/7", http.StatusOK},
		{"/trends/31", http.StatusBadRequest},
	}
	for _, tc := range tests {
		rec := env.do(t, "GET", tc.path, "")
		assert.Equal(t, tc.want, rec.Code, tc.path)
	}

	rec := env.do(t, "GET", "/recent/1", "")
	assert.Len(t, decode[[]models.Alarm](t, rec), 1)
}

func TestHandleActiveAndByEquipment(t *testing.T) {
	env := newEnv(t)
	env.seed(t, testutil.WithClassification(models.AlarmCritical, models.SeverityHigh))
	env.seed(t, testutil.WithClassification(models.AlarmCritical, models.SeverityHigh),
		testutil.WithAlarmStatus(models.AlarmResolved))
	env.seed(t)

	rec := env.do(t, "GET", "/active/critical", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Alarm](t, rec), 1)

	rec = env.do(t, "GET", "/active/warning", "")
	assert.Len(t, decode[[]models.Alarm](t, rec), 1)

	rec = env.do(t, "GET", "/equipment/1", "")
	assert.Len(t, decode[[]models.Alarm](t, rec), 3)

	rec = env.do(t, "GET", "/equipment/1?status=resolved", "")
	assert.Len(t, decode[[]models.Alarm](t, rec), 1)

	rec = env.do(t, "GET", "/stats/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[inventory.AlarmStats](t, rec).Total)
}

func TestHandleSync_NoSyncModule(t *testing.T) {
	env := newEnv(t)
	rec := env.do(t, "POST", "/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
