// Package webhook POSTs alarm, equipment and sync events to a configured URL.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// Config holds the webhook plugin configuration.
type Config struct {
	URL        string
	Timeout    time.Duration
	Enabled    bool
	RetryCount int
	RetryWait  time.Duration
	Headers    map[string]string
}

// DefaultConfig returns the webhook defaults. An empty URL disables delivery.
func DefaultConfig() Config {
	return Config{
		Timeout:    10 * time.Second,
		Enabled:    true,
		RetryCount: 2,
		RetryWait:  time.Second,
	}
}

// Module implements the Webhook notifier plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	client *resty.Client
}

// New creates a new Webhook plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "webhook",
		Version:     "0.1.0",
		Description: "Sends HTTP POST notifications to a configurable webhook URL on alarm events",
		Roles:       []string{"notification"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()

	if c := deps.Config; c != nil {
		m.cfg.URL = c.GetString("url")
		m.cfg.Timeout = config.DurationOr(c, "timeout", m.cfg.Timeout)
		m.cfg.Enabled = config.BoolOr(c, "enabled", m.cfg.Enabled)
		if c.IsSet("retry_count") {
			m.cfg.RetryCount = c.GetInt("retry_count")
		}
		m.cfg.RetryWait = config.DurationOr(c, "retry_wait", m.cfg.RetryWait)
		if raw, ok := c.Get("headers").(map[string]any); ok {
			m.cfg.Headers = make(map[string]string, len(raw))
			for k, v := range raw {
				if s, ok := v.(string); ok {
					m.cfg.Headers[k] = s
				}
			}
		}
	}

	m.client = resty.New().
		SetTimeout(m.cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "AlarmDesk-Webhook/0.1").
		SetHeaders(m.cfg.Headers)

	if m.cfg.URL == "" {
		m.logger.Info("webhook URL not configured; notifications will be dropped")
	}
	m.logger.Info("webhook module initialized",
		zap.String("url", m.cfg.URL),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Bool("enabled", m.cfg.Enabled),
		zap.Int("retry_count", m.cfg.RetryCount),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.cfg.RetryCount < 0 {
		return errInvalidRetryCount
	}
	return nil
}

func (m *Module) Start(_ context.Context) error { return nil }

func (m *Module) Stop(_ context.Context) error { return nil }

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: reconcile.TopicAlarmCreated, Handler: m.handleEvent},
		{Topic: reconcile.TopicAlarmAcknowledged, Handler: m.handleEvent},
		{Topic: reconcile.TopicAlarmResolved, Handler: m.handleEvent},
		{Topic: reconcile.TopicEquipmentOffline, Handler: m.handleEvent},
		{Topic: reconcile.TopicSyncFailed, Handler: m.handleEvent},
	}
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func (m *Module) handleEvent(ctx context.Context, event plugin.Event) {
	if !m.cfg.Enabled || m.cfg.URL == "" {
		return
	}
	m.send(ctx, Payload{
		Event:     event.Topic,
		Source:    event.Source,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	})
}

// send posts p, retrying transport failures and 5xx responses. A 4xx
// response is final.
func (m *Module) send(ctx context.Context, p Payload) {
	var status int
	err := retry.Do(
		func() error {
			resp, err := m.client.R().
				SetContext(ctx).
				SetBody(p).
				Post(m.cfg.URL)
			if err != nil {
				return err
			}
			status = resp.StatusCode()
			if status >= http.StatusInternalServerError {
				return fmt.Errorf("webhook endpoint returned %d", status)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(m.cfg.RetryCount+1)),
		retry.Delay(m.cfg.RetryWait),
		retry.MaxDelay(4*m.cfg.RetryWait),
	)
	if err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("url", m.cfg.URL),
			zap.String("topic", p.Event),
			zap.Error(err),
		)
		return
	}
	if status >= http.StatusBadRequest {
		m.logger.Warn("webhook endpoint returned error",
			zap.String("url", m.cfg.URL),
			zap.String("topic", p.Event),
			zap.Int("status_code", status),
		)
		return
	}
	m.logger.Debug("webhook delivered",
		zap.String("topic", p.Event),
		zap.Int("status_code", status),
	)
}

var errInvalidRetryCount = errors.New("webhook: retry_count must not be negative")
