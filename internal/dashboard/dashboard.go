// Package dashboard serves the combined equipment and alarm summary shown
// on the operations dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Module implements the dashboard plugin.
type Module struct {
	logger *zap.Logger
	store  *inventory.Store
	now    func() time.Time
}

// New creates a new dashboard plugin instance.
func New() *Module {
	return &Module{now: func() time.Time { return time.Now().UTC() }}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "dashboard",
		Version:      "0.1.0",
		Description:  "Dashboard summary statistics",
		Dependencies: []string{"equipment", "alarms"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if deps.Store != nil {
		if err := inventory.Migrate(ctx, deps.Store); err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		m.store = inventory.New(deps.Store)
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/stats", Handler: m.handleStats},
	}
}

// Stats is the response for GET /dashboard/stats.
type Stats struct {
	Equipment *inventory.EquipmentStats `json:"equipment"`
	Alarms    *inventory.AlarmStats     `json:"alarms"`
	Timestamp time.Time                 `json:"timestamp"`
}

func (m *Module) handleStats(w http.ResponseWriter, r *http.Request) {
	eq, err := m.store.EquipmentSummary(r.Context())
	if err == nil {
		var al *inventory.AlarmStats
		al, err = m.store.AlarmSummary(r.Context())
		if err == nil {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Stats{Equipment: eq, Alarms: al, Timestamp: m.now()})
			return
		}
	}
	m.logger.Error("failed to get dashboard stats", zap.Error(err))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   inventory.ProblemType(http.StatusInternalServerError),
		"title":  "Internal Server Error",
		"status": http.StatusInternalServerError,
		"detail": "Failed to get dashboard statistics",
	})
}
