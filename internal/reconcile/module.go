package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/internal/inventory"
	"github.com/HerbHall/alarmdesk/internal/statuscache"
	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// Topics published after each pass.
const (
	TopicEquipmentSynced = "sync.equipment.completed"
	TopicAlarmsSynced    = "sync.alarms.completed"
	TopicSyncFailed      = "sync.failed"
)

// KindAll runs the equipment pass followed by the alarm pass.
const KindAll = "all"

// FailedPayload is published on TopicSyncFailed.
type FailedPayload struct {
	Kind  string `json:"kind"`
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// Config holds the sync module configuration.
type Config struct {
	Enabled             bool
	Interval            time.Duration
	PassTimeout         time.Duration
	Lookback            time.Duration
	IsolateRecordErrors bool
	AckAttempts         int
	AckDelay            time.Duration
	AckTimeout          time.Duration
	ZabbixURL           string
	ZabbixUsername      string
	ZabbixPassword      string
	HostFilter          zabbix.HostFilter
}

// DefaultConfig returns the defaults used when a key is not set.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Interval:    5 * time.Minute,
		PassTimeout: 2 * time.Minute,
		Lookback:    24 * time.Hour,
		AckAttempts: 3,
		AckDelay:    500 * time.Millisecond,
		AckTimeout:  10 * time.Second,
	}
}

func loadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	cfg.Enabled = config.BoolOr(c, "enabled", cfg.Enabled)
	cfg.Interval = config.DurationOr(c, "interval", cfg.Interval)
	cfg.PassTimeout = config.DurationOr(c, "pass_timeout", cfg.PassTimeout)
	cfg.Lookback = config.DurationOr(c, "lookback", cfg.Lookback)
	cfg.IsolateRecordErrors = config.BoolOr(c, "isolate_record_errors", cfg.IsolateRecordErrors)
	cfg.AckAttempts = config.IntOr(c, "ack_attempts", cfg.AckAttempts)
	cfg.AckDelay = config.DurationOr(c, "ack_delay", cfg.AckDelay)
	cfg.AckTimeout = config.DurationOr(c, "ack_timeout", cfg.AckTimeout)
	cfg.ZabbixURL = c.GetString("zabbix.url")
	cfg.ZabbixUsername = c.GetString("zabbix.username")
	cfg.ZabbixPassword = c.GetString("zabbix.password")
	if f, ok := c.Get("host_filter").(map[string]any); ok && len(f) > 0 {
		cfg.HostFilter = zabbix.HostFilter(f)
	}
	return cfg
}

// Client is the upstream the module drives: listing, acknowledge and version.
type Client interface {
	Upstream
	Acknowledger
	Version(ctx context.Context) (string, error)
}

// Module is the sync plugin. It owns the Zabbix client and the engine,
// runs passes on a schedule and on demand, and records each outcome.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bus    plugin.EventBus
	cache  statuscache.Cache
	client Client
	engine *Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ModuleOption configures a Module.
type ModuleOption func(*Module)

// WithStatusCache replaces the default in-memory status cache.
func WithStatusCache(c statuscache.Cache) ModuleOption {
	return func(m *Module) { m.cache = c }
}

// WithClient injects the upstream client instead of building one from config.
func WithClient(c Client) ModuleOption {
	return func(m *Module) { m.client = c }
}

// New creates a new sync plugin instance.
func New(opts ...ModuleOption) *Module {
	m := &Module{}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "sync",
		Version:     "0.1.0",
		Description: "Reconciles Zabbix hosts and events into the local inventory",
		Roles:       []string{"integration"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = loadConfig(deps.Config)
	if m.cache == nil {
		m.cache = statuscache.NewMemory()
	}

	if m.client == nil && m.cfg.ZabbixURL != "" {
		m.client = zabbix.New(m.cfg.ZabbixURL, m.cfg.ZabbixUsername, m.cfg.ZabbixPassword,
			zabbix.WithLogger(m.logger.Named("zabbix")),
			zabbix.WithObserver(observeUpstream),
		)
	}

	var store Store = nopStore{}
	if deps.Store != nil {
		if err := inventory.Migrate(ctx, deps.Store); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		store = inventory.New(deps.Store)
	}

	engineOpts := []EngineOption{
		WithLogger(m.logger),
		WithNotifier(m.publish),
	}
	var upstream Upstream
	if m.client != nil {
		upstream = m.client
		engineOpts = append(engineOpts, WithAcknowledger(m.client))
	}
	m.engine = NewEngine(store, upstream, Options{
		Lookback:            m.cfg.Lookback,
		IsolateRecordErrors: m.cfg.IsolateRecordErrors,
		HostFilter:          m.cfg.HostFilter,
		AckAttempts:         m.cfg.AckAttempts,
		AckDelay:            m.cfg.AckDelay,
		AckTimeout:          m.cfg.AckTimeout,
	}, engineOpts...)

	if m.client == nil {
		m.logger.Warn("zabbix url not configured; sync passes are disabled")
	}
	m.logger.Info("sync module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.Duration("interval", m.cfg.Interval),
		zap.Duration("lookback", m.cfg.Lookback),
		zap.Bool("isolate_record_errors", m.cfg.IsolateRecordErrors),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.Interval < time.Second {
		return fmt.Errorf("sync: interval %s is below 1s", m.cfg.Interval)
	}
	if m.cfg.ZabbixURL != "" && m.cfg.ZabbixUsername == "" {
		return errors.New("sync: zabbix.username is required when zabbix.url is set")
	}
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	if !m.cfg.Enabled || m.client == nil {
		m.logger.Info("sync scheduler not started")
		return nil
	}

	m.wg.Add(1)
	go m.loop()
	m.logger.Info("sync module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("sync module stopped")
	return nil
}

// Engine exposes the engine for the alarm operations of other modules.
func (m *Module) Engine() *Engine { return m.engine }

func (m *Module) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Module) tick() {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.PassTimeout)
	defer cancel()
	if _, err := m.Run(ctx, KindAll); err != nil && ctx.Err() == nil {
		m.logger.Warn("scheduled sync failed", zap.Error(err))
	}
}

// Run executes a pass of the given kind and records its outcome. KindAll
// runs equipment then alarms and stops at the first failing pass.
func (m *Module) Run(ctx context.Context, kind string) ([]*Result, error) {
	switch kind {
	case KindEquipment, KindAlarms:
		res, err := m.runPass(ctx, kind)
		if err != nil {
			return nil, err
		}
		return []*Result{res}, nil
	case KindAll:
		var out []*Result
		for _, k := range []string{KindEquipment, KindAlarms} {
			res, err := m.runPass(ctx, k)
			if err != nil {
				return out, err
			}
			out = append(out, res)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown sync kind %q", kind)
	}
}

func (m *Module) runPass(ctx context.Context, kind string) (*Result, error) {
	runID := uuid.NewString()
	start := time.Now()

	var (
		res *Result
		err error
	)
	if kind == KindEquipment {
		res, err = m.engine.SyncEquipment(ctx)
	} else {
		res, err = m.engine.SyncAlarms(ctx)
	}
	syncDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	entry := statuscache.Entry{Kind: kind, RunID: runID, FinishedAt: time.Now().UTC()}
	if err != nil {
		entry.Outcome = statuscache.OutcomeFailure
		entry.Error = err.Error()
		m.logger.Error("sync pass failed",
			zap.String("kind", kind),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		m.publish(ctx, TopicSyncFailed, FailedPayload{Kind: kind, RunID: runID, Error: err.Error()})
	} else {
		entry.Outcome = statuscache.OutcomeSuccess
		if data, merr := json.Marshal(res); merr == nil {
			entry.Result = data
		}
		recordResult(res)
		topic := TopicEquipmentSynced
		if kind == KindAlarms {
			topic = TopicAlarmsSynced
		}
		m.publish(ctx, topic, res)
	}
	syncRunsTotal.WithLabelValues(kind, entry.Outcome).Inc()

	// The pass context may already be done; the outcome is still recorded.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if cerr := m.cache.Put(cctx, entry); cerr != nil {
		m.logger.Warn("failed to record sync status", zap.String("kind", kind), zap.Error(cerr))
	}
	return res, err
}

// Status returns the last recorded outcome of every pass kind.
func (m *Module) Status(ctx context.Context) ([]statuscache.Entry, error) {
	return m.cache.All(ctx)
}

// TestConnection asks the upstream for its API version.
func (m *Module) TestConnection(ctx context.Context) (string, error) {
	if m.client == nil {
		return "", ErrNotConfigured
	}
	return m.client.Version(ctx)
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.client == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "zabbix upstream not configured"}
	}
	entries, err := m.cache.All(ctx)
	if err != nil {
		return plugin.HealthStatus{Status: "degraded", Message: "sync status unavailable: " + err.Error()}
	}
	details := make(map[string]string, len(entries))
	status := "healthy"
	for _, e := range entries {
		details[e.Kind] = e.Outcome
		if e.Outcome == statuscache.OutcomeFailure {
			status = "degraded"
		}
	}
	return plugin.HealthStatus{Status: status, Details: details}
}

func (m *Module) publish(ctx context.Context, topic string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:   topic,
		Source:  "sync",
		Payload: payload,
	})
}
