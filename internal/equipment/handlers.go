package equipment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

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
		{Method: "GET", Path: "/export.xlsx", Handler: m.handleExport},
		{Method: "GET", Path: "/stats/summary", Handler: m.handleStats},
		{Method: "GET", Path: "/client/{client}", Handler: m.handleByClient},
		{Method: "GET", Path: "/search/{term}", Handler: m.handleSearch},
		{Method: "GET", Path: "/{id}", Handler: m.handleGet},
		{Method: "GET", Path: "/{id}/{view}", Handler: m.handleView},
		{Method: "PUT", Path: "/{id}", Handler: m.handleUpdate},
		{Method: "DELETE", Path: "/{id}", Handler: m.handleDelete},
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
		m.logger.Error("equipment store error", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid equipment id")
	}
	return id, nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.EquipmentStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	list, err := m.store.ListEquipment(r.Context(), inventory.EquipmentFilter{
		ClientName: q.Get("client_name"),
		Status:     status,
		Skip:       queryInt(r, "skip"),
		Limit:      queryInt(r, "limit"),
	})
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := m.store.GetEquipment(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// WithAlarms is the response for GET /{id}/with-alarms.
type WithAlarms struct {
	models.Equipment
	Alarms []models.Alarm `json:"alarms"`
}

// handleView serves the per-equipment sub-resources with-alarms and health.
func (m *Module) handleView(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch r.PathValue("view") {
	case "with-alarms":
		e, err := m.store.GetEquipment(r.Context(), id)
		if err != nil {
			m.storeError(w, err)
			return
		}
		alarms, err := m.store.ListAlarms(r.Context(), inventory.AlarmFilter{EquipmentID: id, Limit: 1000})
		if err != nil {
			m.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, WithAlarms{Equipment: *e, Alarms: alarms})
	case "health":
		h, err := m.store.Health(r.Context(), id)
		if err != nil {
			m.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	default:
		writeError(w, http.StatusNotFound, "unknown equipment view")
	}
}

func (m *Module) handleCreate(w http.ResponseWriter, r *http.Request) {
	var e models.Equipment
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e.ID = 0
	if err := e.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	if err := m.store.CreateEquipment(r.Context(), &e); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (m *Module) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var u models.EquipmentUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := u.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	e, err := m.store.GetEquipment(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	if !u.Empty() {
		u.Apply(e)
		if err := m.store.UpdateEquipment(r.Context(), e); err != nil {
			m.storeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, e)
}

func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := m.store.DeleteEquipment(r.Context(), id); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Equipment deleted successfully"})
}

func (m *Module) handleSync(w http.ResponseWriter, r *http.Request) {
	runner, ok := m.runner()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "sync module is not available")
		return
	}
	results, err := runner.Run(r.Context(), reconcile.KindEquipment)
	if err != nil {
		writeError(w, reconcile.ErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results[0])
}

func (m *Module) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := m.store.EquipmentSummary(r.Context())
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (m *Module) handleByClient(w http.ResponseWriter, r *http.Request) {
	list, err := m.store.ListEquipment(r.Context(), inventory.EquipmentFilter{
		ClientName: r.PathValue("client"),
		Limit:      1000,
	})
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (m *Module) handleSearch(w http.ResponseWriter, r *http.Request) {
	list, err := m.store.SearchEquipment(r.Context(), r.PathValue("term"), queryInt(r, "limit"))
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
