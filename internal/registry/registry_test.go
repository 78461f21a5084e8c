package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"go.uber.org/zap"
)

// testPlugin is a minimal plugin that records lifecycle calls into a shared log.
type testPlugin struct {
	info    plugin.PluginInfo
	initErr error
	log     *[]string
	subs    []plugin.Subscription
}

func newTestPlugin(name string, log *[]string, deps ...string) *testPlugin {
	return &testPlugin{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "1.0.0",
			Description:  "test plugin " + name,
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
		log: log,
	}
}

func (p *testPlugin) record(what string) {
	if p.log != nil {
		*p.log = append(*p.log, what+":"+p.info.Name)
	}
}

func (p *testPlugin) Info() plugin.PluginInfo { return p.info }
func (p *testPlugin) Init(_ context.Context, _ plugin.Dependencies) error {
	p.record("init")
	return p.initErr
}
func (p *testPlugin) Start(_ context.Context) error        { p.record("start"); return nil }
func (p *testPlugin) Stop(_ context.Context) error         { p.record("stop"); return nil }
func (p *testPlugin) Subscriptions() []plugin.Subscription { return p.subs }

func noDeps(name string) plugin.Dependencies {
	return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
}

func TestRegister_RejectsDuplicatesAndEmptyNames(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Register(newTestPlugin("alarms", nil)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(newTestPlugin("alarms", nil)); err == nil {
		t.Error("expected duplicate registration error")
	}
	if err := r.Register(newTestPlugin("", nil)); err == nil {
		t.Error("expected empty name error")
	}
}

func TestLifecycle_DependencyOrder(t *testing.T) {
	var log []string
	r := New(zap.NewNop())
	_ = r.Register(newTestPlugin("sync", &log, "equipment", "alarms"))
	_ = r.Register(newTestPlugin("alarms", &log, "equipment"))
	_ = r.Register(newTestPlugin("equipment", &log))

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.InitAll(context.Background(), noDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	r.StopAll(context.Background())

	want := []string{
		"init:equipment", "init:alarms", "init:sync",
		"start:equipment", "start:alarms", "start:sync",
		"stop:sync", "stop:alarms", "stop:equipment",
	}
	if strings.Join(log, ",") != strings.Join(want, ",") {
		t.Errorf("lifecycle order:\n got %v\nwant %v", log, want)
	}
}

func TestValidate_MissingDependencyCascades(t *testing.T) {
	r := New(zap.NewNop())
	_ = r.Register(newTestPlugin("webhook", nil, "ghost"))
	_ = r.Register(newTestPlugin("digest", nil, "webhook"))
	_ = r.Register(newTestPlugin("alarms", nil))

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("webhook") || !r.IsDisabled("digest") {
		t.Error("expected webhook and its dependent to be disabled")
	}
	if r.IsDisabled("alarms") {
		t.Error("alarms should remain active")
	}
	if _, ok := r.Get("webhook"); ok {
		t.Error("Get returned a disabled plugin")
	}
}

func TestValidate_RequiredPluginMissingDependencyFails(t *testing.T) {
	r := New(zap.NewNop())
	p := newTestPlugin("alarms", nil, "equipment")
	p.info.Required = true
	_ = r.Register(p)

	if err := r.Validate(); err == nil {
		t.Fatal("expected error for required plugin with missing dependency")
	}
}

func TestValidate_Cycle(t *testing.T) {
	r := New(zap.NewNop())
	_ = r.Register(newTestPlugin("a", nil, "b"))
	_ = r.Register(newTestPlugin("b", nil, "a"))

	err := r.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("Validate error = %v, want cycle error", err)
	}
}

func TestValidate_APIVersionOutOfRange(t *testing.T) {
	r := New(zap.NewNop())
	p := newTestPlugin("future", nil)
	p.info.APIVersion = plugin.APIVersionCurrent + 1
	_ = r.Register(p)

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("future") {
		t.Error("expected plugin targeting a newer API to be disabled")
	}
}

func TestDisable_AdministrativelyOff(t *testing.T) {
	r := New(zap.NewNop())
	_ = r.Register(newTestPlugin("mqtt", nil))
	if err := r.Disable("mqtt", "plugins.mqtt.enabled=false"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if err := r.Disable("ghost", "x"); err == nil {
		t.Error("expected error disabling unknown plugin")
	}
	_ = r.Validate()

	statuses := r.Statuses()
	if len(statuses) != 1 || statuses[0].Enabled || statuses[0].Reason == "" {
		t.Errorf("Statuses = %+v, want one disabled entry with a reason", statuses)
	}
}

func TestInitAll_OptionalFailureDisables(t *testing.T) {
	r := New(zap.NewNop())
	bad := newTestPlugin("mqtt", nil)
	bad.initErr = errors.New("broker unreachable")
	_ = r.Register(bad)
	_ = r.Register(newTestPlugin("alarms", nil))
	_ = r.Validate()

	if err := r.InitAll(context.Background(), noDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if !r.IsDisabled("mqtt") {
		t.Error("expected failed optional plugin to be disabled")
	}
	if len(r.All()) != 1 {
		t.Errorf("All() = %d plugins, want 1", len(r.All()))
	}
}

func TestInitAll_RequiredFailureAborts(t *testing.T) {
	r := New(zap.NewNop())
	bad := newTestPlugin("alarms", nil)
	bad.info.Required = true
	bad.initErr = errors.New("no store")
	_ = r.Register(bad)
	_ = r.Validate()

	if err := r.InitAll(context.Background(), noDeps); err == nil {
		t.Fatal("expected InitAll error for required plugin")
	}
}

type recordingBus struct{ topics []string }

func (b *recordingBus) Subscribe(topic string, _ plugin.EventHandler) func() {
	b.topics = append(b.topics, topic)
	return func() {}
}

func TestSubscribe_WiresDeclaredHandlers(t *testing.T) {
	r := New(zap.NewNop())
	p := newTestPlugin("ws", nil)
	p.subs = []plugin.Subscription{
		{Topic: "alarm.created", Handler: func(context.Context, plugin.Event) {}},
		{Topic: "alarm.resolved", Handler: func(context.Context, plugin.Event) {}},
	}
	_ = r.Register(p)
	_ = r.Validate()

	bus := &recordingBus{}
	r.Subscribe(bus)
	if len(bus.topics) != 2 {
		t.Errorf("subscribed topics = %v, want 2", bus.topics)
	}
}

func TestResolveByRole(t *testing.T) {
	r := New(zap.NewNop())
	hook := newTestPlugin("webhook", nil)
	hook.info.Roles = []string{"notification"}
	_ = r.Register(hook)
	_ = r.Register(newTestPlugin("alarms", nil))
	_ = r.Validate()

	got := r.ResolveByRole("notification")
	if len(got) != 1 || got[0].Info().Name != "webhook" {
		t.Errorf("ResolveByRole = %v, want [webhook]", got)
	}
}
