package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/equipment", Handler: m.handleRun(KindEquipment)},
		{Method: "POST", Path: "/alarms", Handler: m.handleRun(KindAlarms)},
		{Method: "POST", Path: "/all", Handler: m.handleRun(KindAll)},
		{Method: "GET", Path: "/status", Handler: m.handleStatus},
		{Method: "GET", Path: "/test-connection", Handler: m.handleTestConnection},
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

// ErrorStatus maps a pass error to an HTTP status code.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, zabbix.ErrAuth), errors.Is(err, zabbix.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleRun triggers a pass and waits for its result. Single passes
// answer with one Result, "all" with the list of completed passes.
func (m *Module) handleRun(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := m.Run(r.Context(), kind)
		if err != nil {
			writeError(w, ErrorStatus(err), err.Error())
			return
		}
		if kind != KindAll && len(results) == 1 {
			writeJSON(w, http.StatusOK, results[0])
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := m.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  m.cfg.Enabled,
		"interval": m.cfg.Interval.String(),
		"passes":   entries,
	})
}

// handleTestConnection reports whether the Zabbix API answers. A failing
// upstream is a 200 with success=false, not an error response.
func (m *Module) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	version, err := m.TestConnection(r.Context())
	if err != nil {
		resp["success"] = false
		resp["error"] = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["success"] = true
	resp["version"] = version
	writeJSON(w, http.StatusOK, resp)
}
