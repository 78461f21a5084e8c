// Package plugintest holds the behavioural checks every alarmdesk plugin
// must pass. Call TestPluginContract from each plugin package:
//
//	func TestContract(t *testing.T) {
//	    plugintest.TestPluginContract(t, func() plugin.Plugin { return alarms.New() })
//	}
package plugintest

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"go.uber.org/zap"
)

var pluginName = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

var routeMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true,
}

var healthStates = map[string]bool{"healthy": true, "degraded": true, "unhealthy": true}

// TestPluginContract checks metadata, the lifecycle and every optional
// interface the plugin implements. Plugins are initialised with only a
// logger: no store, bus, config or resolver. They must come up in a
// degraded no-op mode rather than fail or panic.
func TestPluginContract(t *testing.T, factory func() plugin.Plugin) {
	t.Helper()

	t.Run("metadata", func(t *testing.T) {
		info := factory().Info()
		if !pluginName.MatchString(info.Name) {
			t.Errorf("Name %q must be lower-case and usable in a URL path", info.Name)
		}
		if info.Version == "" {
			t.Error("Version must not be empty")
		}
		if info.APIVersion < plugin.APIVersionMin || info.APIVersion > plugin.APIVersionCurrent {
			t.Errorf("APIVersion = %d, want %d..%d", info.APIVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
		}
		for _, dep := range info.Dependencies {
			if dep == info.Name {
				t.Errorf("plugin %q depends on itself", info.Name)
			}
		}
		if again := factory().Info(); again.Name != info.Name || again.Version != info.Version {
			t.Error("Info must be stable across instances")
		}
	})

	t.Run("lifecycle", func(t *testing.T) {
		p := initialised(t, factory)
		ctx := context.Background()
		if err := p.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	})

	t.Run("stop_without_start", func(t *testing.T) {
		if err := initialised(t, factory).Stop(context.Background()); err != nil {
			t.Fatalf("Stop() without Start error = %v", err)
		}
	})

	t.Run("routes", func(t *testing.T) {
		hp, ok := initialised(t, factory).(plugin.HTTPProvider)
		if !ok {
			t.Skip("no HTTP routes")
		}
		seen := make(map[string]bool)
		for _, r := range hp.Routes() {
			key := r.Method + " " + r.Path
			switch {
			case !routeMethods[r.Method]:
				t.Errorf("%s: unsupported method", key)
			case r.Path != "" && !strings.HasPrefix(r.Path, "/"):
				t.Errorf("%s: path must be empty or start with /", key)
			case r.Handler == nil:
				t.Errorf("%s: nil handler", key)
			case seen[key]:
				t.Errorf("%s: registered twice", key)
			}
			seen[key] = true
		}
	})

	t.Run("subscriptions", func(t *testing.T) {
		es, ok := initialised(t, factory).(plugin.EventSubscriber)
		if !ok {
			t.Skip("no event subscriptions")
		}
		for _, s := range es.Subscriptions() {
			if s.Topic == "" || s.Handler == nil {
				t.Errorf("subscription %+v needs a topic and a handler", s)
			}
		}
	})

	t.Run("health", func(t *testing.T) {
		hc, ok := initialised(t, factory).(plugin.HealthChecker)
		if !ok {
			t.Skip("no health check")
		}
		if st := hc.Health(context.Background()); !healthStates[st.Status] {
			t.Errorf("Health().Status = %q, want healthy, degraded or unhealthy", st.Status)
		}
	})

	t.Run("default_config_valid", func(t *testing.T) {
		v, ok := initialised(t, factory).(plugin.Validator)
		if !ok {
			t.Skip("no config validation")
		}
		if err := v.ValidateConfig(); err != nil {
			t.Errorf("ValidateConfig() with defaults = %v", err)
		}
	})
}

func initialised(t *testing.T, factory func() plugin.Plugin) plugin.Plugin {
	t.Helper()
	p := factory()
	deps := plugin.Dependencies{Logger: zap.NewNop().Named(p.Info().Name)}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return p
}
