// Package runbook serves runbooks and notes attached to equipment
// and, optionally, to a specific alarm.
package runbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the documentation plugin.
type Module struct {
	logger *zap.Logger
	store  *inventory.Store
}

// New creates a new documentation plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "documentation",
		Version:      "0.1.0",
		Description:  "Equipment and alarm documentation",
		Dependencies: []string{"equipment"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if deps.Store != nil {
		if err := inventory.Migrate(ctx, deps.Store); err != nil {
			return fmt.Errorf("documentation: %w", err)
		}
		m.store = inventory.New(deps.Store)
	}
	m.logger.Info("documentation module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/{$}", Handler: m.handleList},
		{Method: "POST", Path: "/{$}", Handler: m.handleCreate},
		{Method: "GET", Path: "/{id}", Handler: m.handleGet},
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
		m.logger.Error("documentation store error", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid documentation id")
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s filter", key)
	}
	return n, nil
}

func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	equipmentID, err := queryInt64(r, "equipment_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alarmID, err := queryInt64(r, "alarm_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docType := models.DocType(q.Get("doc_type"))
	if docType != "" && !docType.Valid() {
		writeError(w, http.StatusBadRequest, "invalid doc_type filter")
		return
	}
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	list, err := m.store.ListDocumentation(r.Context(), inventory.DocumentationFilter{
		EquipmentID: equipmentID,
		AlarmID:     alarmID,
		DocType:     docType,
		PublicOnly:  q.Get("public") == "true",
		Skip:        skip,
		Limit:       limit,
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
	d, err := m.store.GetDocumentation(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (m *Module) handleCreate(w http.ResponseWriter, r *http.Request) {
	var d models.Documentation
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d.ID = 0
	if err := d.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	if err := m.checkRefs(r.Context(), d.EquipmentID, d.AlarmID); err != nil {
		m.storeError(w, err)
		return
	}
	if err := m.store.CreateDocumentation(r.Context(), &d); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (m *Module) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var u models.DocumentationUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := u.Validate(); err != nil {
		m.storeError(w, err)
		return
	}
	d, err := m.store.GetDocumentation(r.Context(), id)
	if err != nil {
		m.storeError(w, err)
		return
	}
	u.Apply(d)
	if u.AlarmID != nil {
		if err := m.checkRefs(r.Context(), d.EquipmentID, d.AlarmID); err != nil {
			m.storeError(w, err)
			return
		}
	}
	if err := m.store.UpdateDocumentation(r.Context(), d); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (m *Module) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := m.store.DeleteDocumentation(r.Context(), id); err != nil {
		m.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Documentation deleted successfully"})
}

// checkRefs turns dangling references into validation errors instead of
// foreign key failures.
func (m *Module) checkRefs(ctx context.Context, equipmentID int64, alarmID *int64) error {
	if _, err := m.store.GetEquipment(ctx, equipmentID); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return &models.ValidationError{Field: "equipment_id", Message: "does not reference existing equipment"}
		}
		return err
	}
	if alarmID == nil {
		return nil
	}
	if _, err := m.store.GetAlarm(ctx, *alarmID); err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return &models.ValidationError{Field: "alarm_id", Message: "does not reference an existing alarm"}
		}
		return err
	}
	return nil
}
