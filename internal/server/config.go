package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the HTTP listener and request-guard settings from the
// "server" section.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// RateLimit applies per client address to every API request.
	RateLimit RateConfig `mapstructure:"rate_limit"`

	// SyncRateLimit applies on top of RateLimit to requests that start a
	// sync pass, since each one fans out to the upstream API.
	SyncRateLimit RateConfig `mapstructure:"sync_rate_limit"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For header is honored.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// RateConfig is a token bucket: RPS refill rate and Burst capacity.
type RateConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DefaultConfig returns the listener settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:          "0.0.0.0",
		Port:          8080,
		RateLimit:     RateConfig{RPS: 100, Burst: 200},
		SyncRateLimit: RateConfig{RPS: 0.1, Burst: 3},
	}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConfigFrom reads the "server" section of v. Keys are read one by one so
// AD_SERVER_* environment overrides apply to nested values too.
func ConfigFrom(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()
	if v.IsSet("server.host") {
		cfg.Host = v.GetString("server.host")
	}
	if v.IsSet("server.port") {
		cfg.Port = v.GetInt("server.port")
	}
	if v.IsSet("server.rate_limit.rps") {
		cfg.RateLimit.RPS = v.GetFloat64("server.rate_limit.rps")
	}
	if v.IsSet("server.rate_limit.burst") {
		cfg.RateLimit.Burst = v.GetInt("server.rate_limit.burst")
	}
	if v.IsSet("server.sync_rate_limit.rps") {
		cfg.SyncRateLimit.RPS = v.GetFloat64("server.sync_rate_limit.rps")
	}
	if v.IsSet("server.sync_rate_limit.burst") {
		cfg.SyncRateLimit.Burst = v.GetInt("server.sync_rate_limit.burst")
	}
	cfg.TrustedProxies = v.GetStringSlice("server.trusted_proxies")

	if cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0 {
		return Config{}, fmt.Errorf("server.rate_limit: rps and burst must be positive")
	}
	if cfg.SyncRateLimit.RPS <= 0 || cfg.SyncRateLimit.Burst <= 0 {
		return Config{}, fmt.Errorf("server.sync_rate_limit: rps and burst must be positive")
	}
	if _, err := parseProxies(cfg.TrustedProxies); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from file and environment variables.
// Environment variables use the AD_ prefix with dots replaced by
// underscores, e.g. AD_PLUGINS_SYNC_ZABBIX_URL.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit.rps", 100)
	v.SetDefault("server.rate_limit.burst", 200)
	v.SetDefault("server.sync_rate_limit.rps", 0.1)
	v.SetDefault("server.sync_rate_limit.burst", 3)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/alarmdesk.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.status_ttl", "24h")

	v.SetDefault("plugins.sync.enabled", true)
	v.SetDefault("plugins.sync.interval", "5m")
	v.SetDefault("plugins.sync.pass_timeout", "2m")
	v.SetDefault("plugins.sync.lookback", "24h")
	v.SetDefault("plugins.sync.isolate_record_errors", false)
	v.SetDefault("plugins.sync.ack_attempts", 3)
	v.SetDefault("plugins.sync.ack_delay", "500ms")
	v.SetDefault("plugins.sync.ack_timeout", "10s")
	v.SetDefault("plugins.sync.zabbix.url", "")
	v.SetDefault("plugins.sync.zabbix.username", "")
	v.SetDefault("plugins.sync.zabbix.password", "")
	v.SetDefault("plugins.mqtt.broker_url", "")
	v.SetDefault("plugins.mqtt.topic_prefix", "alarmdesk")
	v.SetDefault("plugins.mqtt.ha_discovery", false)
	v.SetDefault("plugins.webhook.enabled", true)
	v.SetDefault("plugins.webhook.url", "")
	v.SetDefault("plugins.webhook.timeout", "10s")
	v.SetDefault("plugins.webhook.retry_count", 2)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("alarmdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alarmdesk")
	}

	v.SetEnvPrefix("AD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
