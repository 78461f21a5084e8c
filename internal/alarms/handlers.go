package alarms

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/{$}", Handler: m.handleList},
		{Method: "POST", Path: "/{$}", Handler: m.handleCreate},
		{Method: "POST", Path: "/sync", Handler: m.handleSync},
		{Method: "GET", Path: "/stats/summary", Handler: m.handleStats},
		{Method: "GET", Path: "/equipment/{id}", Handler: m.handleByEquipment},
		{Method: "GET", Path: "/recent/{hours}", Handler: m.handleRecent},
		{Method: "GET", Path: "/trends/{days}", Handler: m.handleTrends},
		{Method: "GET", Path: "/active/critical", Handler: m.handleActive(models.AlarmCritical)},
		{Method: "GET", Path: "/active/warning", Handler: m.handleActive(models.AlarmWarning)},
		{Method: "GET", Path: "/{id}", Handler: m.handleGet},
		{Method: "PUT", Path: "/{id}", Handler: m.handleUpdate},
		{Method: "DELETE", Path: "/{id}", Handler: m.handleDelete},
		{Method: "POST", Path: "/{id}/acknowledge", Handler: m.handleAcknowledge},
		{Method: "POST", Path: "/{id}/resolve", Handler: m.handleResolve},
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an RFC 7807 problem detail response.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   inventory.ProblemType(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func (m *Module) storeError(w http.ResponseWriter, err error) {
	status := inventory.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		m.logger.Error("alarm store error", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func pathInt(r *http.Request, name string) (int64, error) {
	n, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// Page is the paginated response for GET /.
type Page struct {
	Items []models.Alarm `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Pages int            `json:"pages"`
}

func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := inventory.AlarmFilter{
		Status:    models.AlarmStatus(q.Get("status")),
		AlarmType: models.AlarmType(q.Get("alarm_type")),
		Skip:      max(queryInt(r, "skip"), 0),
		Limit:     queryInt(r, "limit"),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	if f.AlarmType != "" && !f.AlarmType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid alarm_type filter")
		return
	}
	if v := q.Get("equipment_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid equipment_id filter")
			return
		}
		f.EquipmentID = id
	}
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	items, err := m.store.ListAlarms(r.Context(), f)
	if err != nil {
		m.storeError(w, err)
		return
	}
	total, err := m.store.CountAlarms(r.Context(), f)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Page{
		Items: items,
		Total: total,
		Page:  f.Skip/f.Limit + 1,
		Size:  f.Limit,
		Pages: (total + f.Limit - 1) / f.Limit,
	})
}

func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := m.store.GetAlarm(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (m *Module) handleCreate(w http.ResponseWriter, r *http.Request) {
	var a models.Alarm
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.ID = 0
	if err := a.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	if _, err := m.store.GetEquipment(r.Context(), a.EquipmentID); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "equipment_id does not reference existing equipment")
			return
		}
		m.storeError(w, err)
		return
	}
	if err := m.store.CreateAlarm(r.Context(), &a); err != nil {
		m.storeError(w, err)
		return
	}
	m.publish(r.Context(), reconcile.TopicAlarmCreated, &a)
	writeJSON(w, http.StatusCreated, a)
}

func (m *Module) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var u models.AlarmUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := u.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	a, err := m.store.GetAlarm(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	u.Apply(a, time.Now().UTC())
	if err := m.store.UpdateAlarm(r.Context(), a); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := m.store.DeleteAlarm(r.Context(), id); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alarm deleted successfully"})
}

func (m *Module) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := r.URL.Query().Get("acknowledged_by")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "acknowledged_by is required")
		return
	}
	a, err := m.engine().Acknowledge(r.Context(), id, actor)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (m *Module) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := m.engine().Resolve(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (m *Module) handleSync(w http.ResponseWriter, r *http.Request) {
	s, ok := m.sync()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "sync module is not available")
		return
	}
	results, err := s.Run(r.Context(), reconcile.KindAlarms)
	if err != nil {
		writeError(w, reconcile.ErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results[0])
}

func (m *Module) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := m.store.AlarmSummary(r.Context())
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (m *Module) handleByEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := models.AlarmStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	list, err := m.store.ListAlarms(r.Context(), inventory.AlarmFilter{
		EquipmentID: id,
		Status:      status,
		Limit:       1000,
	})
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (m *Module) handleRecent(w http.ResponseWriter, r *http.Request) {
	hours, err := strconv.Atoi(r.PathValue("hours"))
	if err != nil || hours < 1 || hours > 168 {
		writeError(w, http.StatusBadRequest, "Hours must be between 1 and 168")
		return
	}
	list, err := m.store.ListAlarms(r.Context(), inventory.AlarmFilter{
		Since: time.Now().UTC().Add(-time.Duration(hours) * time.Hour),
		Limit: 1000,
	})
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (m *Module) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.PathValue("days"))
	if err != nil || days < 1 || days > 30 {
		writeError(w, http.StatusBadRequest, "Days must be between 1 and 30")
		return
	}
	trends, err := m.store.AlarmTrends(r.Context(), days)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trends)
}

func (m *Module) handleActive(t models.AlarmType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := m.store.ListAlarms(r.Context(), inventory.AlarmFilter{
			Status:    models.AlarmActive,
			AlarmType: t,
			Limit:     1000,
		})
		if err != nil {
			m.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
