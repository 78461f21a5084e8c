// Package config provides a Viper-backed implementation of the plugin.Config interface.
package config

import (
	"time"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig wraps a Viper instance to implement plugin.Config.
type ViperConfig struct {
	v *viper.Viper
}

// New creates a Config backed by the given Viper instance.
// A nil instance yields an empty config where every key reads as its zero value.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Sub scopes the config to key. Viper returns nil for missing sections;
// that case maps to an empty config rather than a nil interface.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Viper returns the underlying Viper instance for top-level keys
// such as server.port and database.dsn.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}

// DurationOr reads key from cfg, falling back to def when cfg is nil,
// the key is unset, or the value is not a positive duration.
func DurationOr(cfg plugin.Config, key string, def time.Duration) time.Duration {
	if cfg == nil || !cfg.IsSet(key) {
		return def
	}
	if d := cfg.GetDuration(key); d > 0 {
		return d
	}
	return def
}

// IntOr reads key from cfg, falling back to def when cfg is nil,
// the key is unset, or the value is not positive.
func IntOr(cfg plugin.Config, key string, def int) int {
	if cfg == nil || !cfg.IsSet(key) {
		return def
	}
	if n := cfg.GetInt(key); n > 0 {
		return n
	}
	return def
}

// BoolOr reads key from cfg, falling back to def when cfg is nil or the key is unset.
func BoolOr(cfg plugin.Config, key string, def bool) bool {
	if cfg == nil || !cfg.IsSet(key) {
		return def
	}
	return cfg.GetBool(key)
}
