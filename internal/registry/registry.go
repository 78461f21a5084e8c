// Package registry manages module lifecycle: registration, dependency
// ordering, initialization, event wiring, and shutdown.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered plugins.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	infos    map[string]plugin.PluginInfo
	order    []string // dependency order, set by Validate
	disabled map[string]string
	unsubs   []func()
	logger   *zap.Logger
}

// New creates a new plugin registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		infos:    make(map[string]plugin.PluginInfo),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds a plugin to the registry. Must be called before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, exists := r.plugins[info.Name]; exists {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}

	r.plugins[info.Name] = p
	r.infos[info.Name] = info
	r.logger.Debug("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)
	return nil
}

// Disable marks a registered plugin as administratively disabled
// (plugins.<name>.enabled=false). Dependents are disabled by Validate.
func (r *Registry) Disable(name, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disableLocked(name, reason)
}

// Validate checks API versions and dependencies, cascades disablement to
// dependents, and computes the start order.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.sortedNames() {
		if err := checkAPIVersion(name, r.infos[name].APIVersion); err != nil {
			if derr := r.disableLocked(name, err.Error()); derr != nil {
				return derr
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, name := range r.sortedNames() {
			if _, off := r.disabled[name]; off {
				continue
			}
			for _, dep := range r.infos[name].Dependencies {
				reason := ""
				if _, ok := r.plugins[dep]; !ok {
					reason = fmt.Sprintf("dependency %q is not registered", dep)
				} else if _, off := r.disabled[dep]; off {
					reason = fmt.Sprintf("dependency %q is disabled", dep)
				}
				if reason == "" {
					continue
				}
				if err := r.disableLocked(name, reason); err != nil {
					return err
				}
				changed = true
				break
			}
		}
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("disabled", len(r.disabled)),
	)
	return nil
}

// InitAll initializes active plugins in dependency order. Optional plugins
// that fail Init or config validation are disabled; required ones abort startup.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		p := r.plugins[name]
		if err := p.Init(ctx, depsFn(name)); err != nil {
			if derr := r.disableLocked(name, "init: "+err.Error()); derr != nil {
				return derr
			}
			continue
		}
		if v, ok := p.(plugin.Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				if derr := r.disableLocked(name, "config: "+err.Error()); derr != nil {
					return derr
				}
			}
		}
	}
	return nil
}

// Subscribe wires every active EventSubscriber's declared handlers into bus.
// StopAll releases the subscriptions.
func (r *Registry) Subscribe(bus plugin.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		es, ok := r.plugins[name].(plugin.EventSubscriber)
		if !ok {
			continue
		}
		for _, sub := range es.Subscriptions() {
			r.unsubs = append(r.unsubs, bus.Subscribe(sub.Topic, sub.Handler))
			r.logger.Debug("plugin subscribed",
				zap.String("name", name),
				zap.String("topic", sub.Topic),
			)
		}
	}
}

// StartAll starts all initialized plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := r.plugins[name].Start(ctx); err != nil {
			if derr := r.disableLocked(name, "start: "+err.Error()); derr != nil {
				return derr
			}
		}
	}
	return nil
}

// StopAll stops active plugins in reverse dependency order.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil

	for _, name := range slices.Backward(r.order) {
		if _, off := r.disabled[name]; off {
			continue
		}
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := r.plugins[name].Stop(ctx); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if _, off := r.disabled[name]; ok && off {
		return nil, false
	}
	return p, ok
}

// All returns all active plugins in dependency order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if _, off := r.disabled[name]; !off {
			result = append(result, r.plugins[name])
		}
	}
	return result
}

// AllRoutes returns HTTP routes keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	routes := make(map[string][]plugin.Route)
	for _, p := range r.All() {
		if hp, ok := p.(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[p.Info().Name] = pr
			}
		}
	}
	return routes
}

// Status describes one registered plugin for the /api/v1/plugins listing.
type Status struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Reason      string `json:"disabled_reason,omitempty"`
}

// Statuses lists every registered plugin sorted by name.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.infos))
	for _, name := range r.sortedNames() {
		info := r.infos[name]
		reason, off := r.disabled[name]
		out = append(out, Status{
			Name:        name,
			Version:     info.Version,
			Description: info.Description,
			Enabled:     !off,
			Reason:      reason,
		})
	}
	return out
}

// Resolve returns a plugin by name (implements plugin.PluginResolver).
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns all active plugins that declare the given role.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	var result []plugin.Plugin
	for _, p := range r.All() {
		if slices.Contains(p.Info().Roles, role) {
			result = append(result, p)
		}
	}
	return result
}

// IsDisabled reports whether a plugin has been disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, off := r.disabled[name]
	return off
}

// disableLocked records the reason a plugin is off. Required plugins cannot
// be disabled; the error aborts startup instead.
func (r *Registry) disableLocked(name, reason string) error {
	info, ok := r.infos[name]
	if !ok {
		return fmt.Errorf("plugin %q is not registered", name)
	}
	if info.Required {
		return fmt.Errorf("required plugin %q unavailable: %s", name, reason)
	}
	if _, off := r.disabled[name]; off {
		return nil
	}
	r.disabled[name] = reason
	r.logger.Warn("plugin disabled", zap.String("name", name), zap.String("reason", reason))
	return nil
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func checkAPIVersion(name string, apiVersion int) error {
	if apiVersion < plugin.APIVersionMin || apiVersion > plugin.APIVersionCurrent {
		return fmt.Errorf("plugin %q targets Plugin API v%d, server supports v%d..v%d",
			name, apiVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
	}
	return nil
}

// topologicalSort orders active plugins with Kahn's algorithm. Ties are
// broken by name so start order is stable across runs.
func (r *Registry) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, name := range r.sortedNames() {
		if _, off := r.disabled[name]; off {
			continue
		}
		inDegree[name] += 0
		for _, dep := range r.infos[name].Dependencies {
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for name, d := range inDegree {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(inDegree))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		var next []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}

	if len(order) != len(inDegree) {
		var cycled []string
		for name, d := range inDegree {
			if d > 0 {
				cycled = append(cycled, name)
			}
		}
		sort.Strings(cycled)
		return nil, fmt.Errorf("dependency cycle detected among plugins: %v", cycled)
	}
	return order, nil
}
