package mqtt

import (
	"time"

	"github.com/HerbHall/alarmdesk/internal/config"
	"github.com/HerbHall/alarmdesk/pkg/plugin"
)

// Config holds MQTT publisher configuration.
type Config struct {
	BrokerURL   string        `mapstructure:"broker_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID    string        `mapstructure:"client_id"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	QoS         byte          `mapstructure:"qos"`
	Retain      bool          `mapstructure:"retain"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Home Assistant MQTT auto-discovery settings.
	HADiscovery       bool   `mapstructure:"ha_discovery"`
	HADiscoveryPrefix string `mapstructure:"ha_discovery_prefix"`
}

// DefaultConfig returns the publisher defaults. An empty broker URL
// disables publishing.
func DefaultConfig() Config {
	return Config{
		ClientID:          "alarmdesk",
		TopicPrefix:       "alarmdesk",
		QoS:               1,
		Timeout:           10 * time.Second,
		HADiscoveryPrefix: "homeassistant",
	}
}

func loadConfig(c plugin.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}
	for key, dst := range map[string]*string{
		"broker_url":          &cfg.BrokerURL,
		"username":            &cfg.Username,
		"password":            &cfg.Password,
		"client_id":           &cfg.ClientID,
		"topic_prefix":        &cfg.TopicPrefix,
		"ha_discovery_prefix": &cfg.HADiscoveryPrefix,
	} {
		if v := c.GetString(key); v != "" {
			*dst = v
		}
	}
	cfg.QoS = byte(config.IntOr(c, "qos", int(cfg.QoS)))
	cfg.Retain = config.BoolOr(c, "retain", cfg.Retain)
	cfg.Timeout = config.DurationOr(c, "timeout", cfg.Timeout)
	cfg.HADiscovery = config.BoolOr(c, "ha_discovery", cfg.HADiscovery)
	return cfg
}
