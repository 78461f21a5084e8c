// Package equipment exposes the equipment inventory over HTTP.
package equipment

import (
	"context"
	"fmt"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// Runner triggers sync passes; implemented by the sync module.
type Runner interface {
	Run(ctx context.Context, kind string) ([]*reconcile.Result, error)
}

// Module implements the equipment plugin.
type Module struct {
	logger  *zap.Logger
	store   *inventory.Store
	plugins plugin.PluginResolver
}

// New creates a new equipment plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "equipment",
		Version:     "0.1.0",
		Description: "Monitored equipment inventory",
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.plugins = deps.Plugins
	if deps.Store != nil {
		if err := inventory.Migrate(ctx, deps.Store); err != nil {
			return fmt.Errorf("equipment: %w", err)
		}
		m.store = inventory.New(deps.Store)
	}
	m.logger.Info("equipment module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("equipment module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("equipment module stopped")
	return nil
}

// runner looks up the sync module at request time so that equipment keeps
// serving when sync is disabled.
func (m *Module) runner() (Runner, bool) {
	if m.plugins == nil {
		return nil, false
	}
	p, ok := m.plugins.Resolve("sync")
	if !ok {
		return nil, false
	}
	r, ok := p.(Runner)
	return r, ok
}
