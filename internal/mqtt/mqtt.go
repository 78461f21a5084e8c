// Package mqtt bridges alarm and equipment events onto an MQTT broker,
// with optional Home Assistant auto-discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/alarmdesk/internal/reconcile"
	"github.com/HerbHall/alarmdesk/pkg/models"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module implements the MQTT publisher plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	mu     sync.RWMutex
	client pahomqtt.Client
}

// Option configures a Module.
type Option func(*Module)

// WithClient injects an already constructed paho client. Start still
// connects it.
func WithClient(c pahomqtt.Client) Option {
	return func(m *Module) { m.client = c }
}

// New creates a new MQTT publisher plugin instance.
func New(opts ...Option) *Module {
	m := &Module{}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "mqtt",
		Version:     "0.1.0",
		Description: "Publishes alarm and equipment events to an MQTT broker",
		Roles:       []string{"notification", "integration"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = loadConfig(deps.Config)

	if m.cfg.BrokerURL == "" && m.client == nil {
		m.logger.Info("mqtt broker URL not configured; events will be dropped")
	}
	m.logger.Info("mqtt module initialized",
		zap.String("broker_url", m.cfg.BrokerURL),
		zap.String("client_id", m.cfg.ClientID),
		zap.String("topic_prefix", m.cfg.TopicPrefix),
		zap.Uint8("qos", m.cfg.QoS),
		zap.Bool("ha_discovery", m.cfg.HADiscovery),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		if m.cfg.BrokerURL == "" {
			return nil
		}
		opts := pahomqtt.NewClientOptions().
			AddBroker(m.cfg.BrokerURL).
			SetClientID(m.cfg.ClientID).
			SetAutoReconnect(true).
			SetConnectTimeout(m.cfg.Timeout)
		if m.cfg.Username != "" {
			opts.SetUsername(m.cfg.Username)
			opts.SetPassword(m.cfg.Password)
		}
		m.client = pahomqtt.NewClient(opts)
	}

	token := m.client.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		m.logger.Warn("mqtt connection failed; will reconnect in background", zap.Error(token.Error()))
	default:
		m.logger.Info("mqtt connected to broker", zap.String("broker_url", m.cfg.BrokerURL))
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	topics := []string{
		reconcile.TopicAlarmCreated,
		reconcile.TopicAlarmAcknowledged,
		reconcile.TopicAlarmResolved,
		reconcile.TopicEquipmentCreated,
		reconcile.TopicEquipmentOffline,
		reconcile.TopicSyncFailed,
	}
	subs := make([]plugin.Subscription, len(topics))
	for i, t := range topics {
		subs[i] = plugin.Subscription{Topic: t, Handler: m.publishEvent}
	}
	return subs
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return plugin.HealthStatus{Status: "healthy", Message: "no broker configured (no-op mode)"}
	}
	if !m.client.IsConnected() {
		return plugin.HealthStatus{Status: "degraded", Message: "not connected to MQTT broker"}
	}
	return plugin.HealthStatus{Status: "healthy", Message: "connected to " + m.cfg.BrokerURL}
}

// mqttTopic maps a bus topic such as "alarm.created" onto "<prefix>/alarm/created".
func (m *Module) mqttTopic(eventTopic string) string {
	return m.cfg.TopicPrefix + "/" + strings.ReplaceAll(eventTopic, ".", "/")
}

func (m *Module) publishEvent(_ context.Context, event plugin.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.client == nil || !m.client.IsConnected() {
		return
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		m.logger.Warn("failed to marshal MQTT payload", zap.String("topic", event.Topic), zap.Error(err))
		return
	}

	topic := m.mqttTopic(event.Topic)
	if !m.publish(topic, m.cfg.Retain, payload) {
		return
	}
	m.logger.Debug("mqtt event published",
		zap.String("mqtt_topic", topic),
		zap.String("event_topic", event.Topic),
	)

	if m.cfg.HADiscovery {
		m.publishHAForEvent(event)
	}
}

// publishHAForEvent keeps HA entities in step with equipment and alarms.
func (m *Module) publishHAForEvent(event plugin.Event) {
	switch event.Topic {
	case reconcile.TopicEquipmentCreated:
		eq := extractEquipment(event.Payload)
		if eq == nil {
			return
		}
		for _, c := range BuildEquipmentDiscoveryConfigs(eq, m.cfg.TopicPrefix, m.cfg.HADiscoveryPrefix) {
			// Discovery configs are always retained so HA picks them up on restart.
			m.publish(c.Topic, true, c.Payload)
		}
		m.publishEquipmentState(eq)

	case reconcile.TopicAlarmCreated, reconcile.TopicAlarmAcknowledged, reconcile.TopicAlarmResolved:
		a := extractAlarm(event.Payload)
		if a == nil {
			return
		}
		if event.Topic == reconcile.TopicAlarmCreated {
			if c := BuildAlarmDiscoveryConfig(a, m.cfg.TopicPrefix, m.cfg.HADiscoveryPrefix); len(c.Payload) > 0 {
				m.publish(c.Topic, true, c.Payload)
			}
		}
		m.publish(alarmStateTopic(m.cfg.TopicPrefix, a.ID), true, []byte(alarmState(a.Status)))
	}
}

func (m *Module) publishEquipmentState(eq *models.Equipment) {
	prefix := m.cfg.TopicPrefix + "/equipment/" + equipmentKey(eq.ID)
	online := "OFF"
	if eq.Status == models.EquipmentOnline {
		online = "ON"
	}
	m.publish(prefix+"/online", true, []byte(online))
	if eq.IPAddress != "" {
		m.publish(prefix+"/ip", true, []byte(eq.IPAddress))
	}
}

// publish sends one message and waits for the broker ack up to the
// configured timeout. Callers hold m.mu.
func (m *Module) publish(topic string, retain bool, payload []byte) bool {
	token := m.client.Publish(topic, m.cfg.QoS, retain, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		m.logger.Warn("mqtt publish timed out", zap.String("mqtt_topic", topic))
		return false
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt publish failed", zap.String("mqtt_topic", topic), zap.Error(err))
		return false
	}
	return true
}

func extractEquipment(payload any) *models.Equipment {
	switch v := payload.(type) {
	case *models.Equipment:
		return v
	case models.Equipment:
		return &v
	}
	return nil
}

func extractAlarm(payload any) *models.Alarm {
	switch v := payload.(type) {
	case *models.Alarm:
		return v
	case models.Alarm:
		return &v
	}
	return nil
}
