// Package reconcile merges Zabbix host and event snapshots into the local
// inventory and implements the alarm acknowledge and resolve operations.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/HerbHall/alarmdesk/internal/zabbix"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"go.uber.org/zap"
)

// Store is the local persistence the engine reads and writes. Lookups
// report a miss with inventory.ErrNotFound.
type Store interface {
	FindEquipmentByHostID(ctx context.Context, hostID string) (*models.Equipment, error)
	FindAlarmByEventID(ctx context.Context, eventID string) (*models.Alarm, error)
	GetAlarm(ctx context.Context, id int64) (*models.Alarm, error)
	CreateEquipment(ctx context.Context, e *models.Equipment) error
	UpdateEquipment(ctx context.Context, e *models.Equipment) error
	CreateAlarm(ctx context.Context, a *models.Alarm) error
	UpdateAlarm(ctx context.Context, a *models.Alarm) error
	MarkEquipmentOfflineExcept(ctx context.Context, hostIDs []string) (int64, error)
}

// Upstream lists the Zabbix snapshot a pass reconciles against.
type Upstream interface {
	ListHosts(ctx context.Context, filter zabbix.HostFilter) ([]zabbix.Host, error)
	ListEvents(ctx context.Context, since, until time.Time, objectIDs []string) ([]zabbix.Event, error)
}

// Acknowledger mirrors local acknowledgements upstream.
type Acknowledger interface {
	AcknowledgeEvent(ctx context.Context, eventID, note string) (bool, error)
}

// Notifier receives domain events produced by the engine.
type Notifier func(ctx context.Context, topic string, payload any)

// Options tune a sync pass.
type Options struct {
	// Lookback is the alarm pass window ending now. Default 24h.
	Lookback time.Duration
	// IsolateRecordErrors keeps a pass going when a single record fails;
	// the failure is counted in Result.Failed. Off by default: the first
	// failing record aborts the pass.
	IsolateRecordErrors bool
	// HostFilter is merged into host.get.
	HostFilter zabbix.HostFilter
	// AckAttempts bounds upstream acknowledgement tries. Default 3.
	AckAttempts int
	// AckDelay is the initial backoff between acknowledgement tries. Default 500ms.
	AckDelay time.Duration
	// AckTimeout caps the whole upstream mirror, retries included, so a
	// dead upstream cannot hold an acknowledge request open. Default 10s.
	AckTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Lookback <= 0 {
		o.Lookback = 24 * time.Hour
	}
	if o.AckAttempts <= 0 {
		o.AckAttempts = 3
	}
	if o.AckDelay <= 0 {
		o.AckDelay = 500 * time.Millisecond
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	return o
}

// Result summarizes one pass.
type Result struct {
	Kind          string    `json:"kind"`
	Synced        int       `json:"synced"`
	Created       int       `json:"created"`
	Updated       int       `json:"updated"`
	Skipped       int       `json:"skipped,omitempty"`
	MarkedOffline int64     `json:"marked_offline,omitempty"`
	Failed        int       `json:"failed,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ErrNotConfigured is returned by a pass when no upstream client is set.
var ErrNotConfigured = errors.New("zabbix upstream is not configured")

// Pass kinds.
const (
	KindEquipment = "equipment"
	KindAlarms    = "alarms"
)

// Engine runs reconciliation passes and alarm operations. It holds no state
// between calls; every pass reads and writes through the store.
type Engine struct {
	store    Store
	upstream Upstream
	acker    Acknowledger
	resolver Resolver
	opts     Options
	logger   *zap.Logger
	notify   Notifier
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithAcknowledger enables upstream mirroring of acknowledgements.
func WithAcknowledger(a Acknowledger) EngineOption {
	return func(e *Engine) { e.acker = a }
}

// WithNotifier registers a receiver for domain events.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notify = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine. upstream may be nil when only the local
// operations are needed; passes then fail with ErrNotConfigured.
func NewEngine(store Store, upstream Upstream, opts Options, options ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		upstream: upstream,
		resolver: NewResolver(store),
		opts:     opts.withDefaults(),
		logger:   zap.NewNop(),
		notify:   func(context.Context, string, any) {},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// recordFailure applies the isolation policy: with isolation on, the
// failure is recorded and nil is returned so the pass continues.
func (e *Engine) recordFailure(res *Result, id string, err error) error {
	if !e.opts.IsolateRecordErrors {
		return err
	}
	res.Failed++
	res.Errors = append(res.Errors, id+": "+err.Error())
	e.logger.Warn("sync record failed", zap.String("kind", res.Kind), zap.String("id", id), zap.Error(err))
	return nil
}

var errNoStore = errors.New("inventory store is not configured")

// nopStore stands in when a module is initialized without a database.
type nopStore struct{}

func (nopStore) FindEquipmentByHostID(context.Context, string) (*models.Equipment, error) {
	return nil, errNoStore
}

func (nopStore) FindAlarmByEventID(context.Context, string) (*models.Alarm, error) {
	return nil, errNoStore
}

func (nopStore) GetAlarm(context.Context, int64) (*models.Alarm, error) { return nil, errNoStore }

func (nopStore) CreateEquipment(context.Context, *models.Equipment) error { return errNoStore }

func (nopStore) UpdateEquipment(context.Context, *models.Equipment) error { return errNoStore }

func (nopStore) CreateAlarm(context.Context, *models.Alarm) error { return errNoStore }

func (nopStore) UpdateAlarm(context.Context, *models.Alarm) error { return errNoStore }

func (nopStore) MarkEquipmentOfflineExcept(context.Context, []string) (int64, error) {
	return 0, errNoStore
}
