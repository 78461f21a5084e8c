package equipment

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

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

// fakeSync is a plugin.Plugin that also satisfies Runner.
type fakeSync struct {
	plugin.Plugin
	kinds []string
	err   error
}

func (f *fakeSync) Run(_ context.Context, kind string) ([]*reconcile.Result, error) {
	f.kinds = append(f.kinds, kind)
	if f.err != nil {
		return nil, f.err
	}
	return []*reconcile.Result{{Kind: kind, Synced: 3, Created: 1, Updated: 2}}, nil
}

type resolver map[string]plugin.Plugin

func (r resolver) Resolve(name string) (plugin.Plugin, bool) {
	p, ok := r[name]
	return p, ok
}

func (r resolver) ResolveByRole(string) []plugin.Plugin { return nil }

type testEnv struct {
	mux   *http.ServeMux
	store *inventory.Store
	sync  *fakeSync
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewStore(t)
	fs := &fakeSync{}
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{
		Logger:  zap.NewNop(),
		Store:   db,
		Plugins: resolver{"sync": fs},
	}))
	mux := http.NewServeMux()
	for _, r := range m.Routes() {
		mux.HandleFunc(r.Method+" "+r.Path, r.Handler)
	}
	return &testEnv{mux: mux, store: m.store, sync: fs}
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

func (e *testEnv) seed(t *testing.T, opts ...func(*models.Equipment)) *models.Equipment {
	t.Helper()
	eq := testutil.NewEquipment(opts...)
	require.NoError(t, e.store.CreateEquipment(context.Background(), &eq))
	return &eq
}

func TestHandleCreate(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, "POST", "/", `{"zabbix_host_id":"10101","name":"core-sw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var got models.Equipment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.NotZero(t, got.ID)
	assert.Equal(t, models.EquipmentOnline, got.Status)
	assert.Equal(t, models.EquipmentTypeUnknown, got.EquipmentType)

	rec = env.do(t, "POST", "/", `{"zabbix_host_id":"10101","name":"dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, "POST", "/", `{"name":"no host id"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetUpdateDelete(t *testing.T) {
	env := newEnv(t)
	eq := env.seed(t, testutil.WithName("edge"))

	rec := env.do(t, "GET", "/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"edge"`)

	rec = env.do(t, "PUT", "/1", `{"location":"rack 9","status":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := env.store.GetEquipment(context.Background(), eq.ID)
	require.NoError(t, err)
	assert.Equal(t, "rack 9", got.Location)
	assert.Equal(t, models.EquipmentMaintenance, got.Status)
	assert.Equal(t, "edge", got.Name, "absent fields are untouched")

	rec = env.do(t, "PUT", "/1", `{"status":"exploded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "DELETE", "/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = env.do(t, "GET", "/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleList(t *testing.T) {
	env := newEnv(t)
	env.seed(t, testutil.WithClient("acme"))
	env.seed(t, testutil.WithClient("globex"))
	env.seed(t, testutil.WithClient("acme"), testutil.WithEquipmentStatus(models.EquipmentOffline))

	tests := []struct {
		path string
		want int
	}{
		{"/", 3},
		{"/?client_name=acme", 2},
		{"/?client_name=acme&status=offline", 1},
		{"/?limit=1", 1},
		{"/?skip=2", 1},
		{"/client/globex", 1},
	}
	for _, tc := range tests {
		rec := env.do(t, "GET", tc.path, "")
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		var list []models.Equipment
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
		assert.Len(t, list, tc.want, tc.path)
	}

	rec := env.do(t, "GET", "/?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearchAndStats(t *testing.T) {
	env := newEnv(t)
	env.seed(t, testutil.WithName("Core Router"))
	env.seed(t, testutil.WithName("access-switch"))

	rec := env.do(t, "GET", "/search/router", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Equipment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Core Router", list[0].Name)

	rec = env.do(t, "GET", "/stats/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats inventory.EquipmentStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Total)
}

func TestHandleViews(t *testing.T) {
	env := newEnv(t)
	eq := env.seed(t)
	a := testutil.NewAlarm(eq.ID, testutil.WithClassification(models.AlarmCritical, models.SeverityHigh))
	require.NoError(t, env.store.CreateAlarm(context.Background(), &a))

	rec := env.do(t, "GET", "/1/with-alarms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var wa WithAlarms
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&wa))
	assert.Equal(t, eq.ID, wa.ID)
	assert.Len(t, wa.Alarms, 1)

	rec = env.do(t, "GET", "/1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var h inventory.EquipmentHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&h))
	assert.Equal(t, "critical", h.Health)

	rec = env.do(t, "GET", "/1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "GET", "/42/health", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSync(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, "POST", "/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res reconcile.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, 3, res.Synced)
	assert.Equal(t, []string{reconcile.KindEquipment}, env.sync.kinds)

	env.sync.err = reconcile.ErrNotConfigured
	rec = env.do(t, "POST", "/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSync_NoSyncModule(t *testing.T) {
	m := New()
	require.NoError(t, m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop()}))
	rec := httptest.NewRecorder()
	m.handleSync(rec, httptest.NewRequest("POST", "/sync", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleExport(t *testing.T) {
	env := newEnv(t)
	env.seed(t, testutil.WithName("core-sw"), testutil.WithHostID("10001"))
	env.seed(t, testutil.WithName("edge-rtr"), testutil.WithHostID("10002"))

	rec := env.do(t, "GET", "/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "10001", rows[1][1])
	assert.Equal(t, "edge-rtr", rows[2][2])
}
