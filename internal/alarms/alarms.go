// Package alarms exposes alarms over HTTP, including the acknowledge and
// resolve operations.
package alarms

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin       = (*Module)(nil)
	_ plugin.HTTPProvider = (*Module)(nil)
)

// syncModule is what alarms needs from the sync plugin.
type syncModule interface {
	Engine() *reconcile.Engine
	Run(ctx context.Context, kind string) ([]*reconcile.Result, error)
}

// Module implements the alarms plugin.
type Module struct {
	logger  *zap.Logger
	store   *inventory.Store
	bus     plugin.EventBus
	plugins plugin.PluginResolver
	local   *reconcile.Engine
}

// New creates a new alarms plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "alarms",
		Version:      "0.1.0",
		Description:  "Alarm listing, statistics, acknowledge and resolve",
		Dependencies: []string{"equipment"},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.plugins = deps.Plugins
	if deps.Store != nil {
		if err := inventory.Migrate(ctx, deps.Store); err != nil {
			return fmt.Errorf("alarms: %w", err)
		}
		m.store = inventory.New(deps.Store)
		m.local = reconcile.NewEngine(m.store, nil, reconcile.Options{},
			reconcile.WithLogger(m.logger),
			reconcile.WithNotifier(m.publish),
		)
	}
	m.logger.Info("alarms module initialized")
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("alarms module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("alarms module stopped")
	return nil
}

func (m *Module) sync() (syncModule, bool) {
	if m.plugins == nil {
		return nil, false
	}
	p, ok := m.plugins.Resolve("sync")
	if !ok {
		return nil, false
	}
	s, ok := p.(syncModule)
	return s, ok
}

// engine prefers the sync module's engine, which mirrors acknowledgements
// upstream, and falls back to a local-only engine.
func (m *Module) engine() *reconcile.Engine {
	if s, ok := m.sync(); ok && s.Engine() != nil {
		return s.Engine()
	}
	return m.local
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:   topic,
		Source:  "alarms",
		Payload: payload,
	})
}
