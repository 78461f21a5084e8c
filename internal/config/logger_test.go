package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"defaults", "", "", false},
		{"debug json", "debug", "json", false},
		{"warn console", "warn", "console", false},
		{"upper case level", "ERROR", "json", false},
		{"invalid level", "banana", "json", true},
		{"invalid format", "info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set("logging.level", tt.level)
			v.Set("logging.format", tt.format)

			logger, err := NewLogger(v)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger: %v", err)
			}
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestSub_MissingSectionIsEmpty(t *testing.T) {
	cfg := New(viper.New())
	sub := cfg.Sub("plugins.sync")
	if sub == nil {
		t.Fatal("Sub returned nil")
	}
	if sub.IsSet("interval") {
		t.Error("empty sub config reports key as set")
	}
}

func TestFallbackHelpers(t *testing.T) {
	v := viper.New()
	v.Set("interval", "2m")
	v.Set("zero", "0s")
	v.Set("attempts", 5)
	v.Set("enabled", false)
	cfg := New(v)

	if got := DurationOr(cfg, "interval", time.Minute); got != 2*time.Minute {
		t.Errorf("DurationOr(interval) = %v, want 2m", got)
	}
	if got := DurationOr(cfg, "zero", time.Minute); got != time.Minute {
		t.Errorf("DurationOr(zero) = %v, want fallback", got)
	}
	if got := DurationOr(nil, "interval", time.Second); got != time.Second {
		t.Errorf("DurationOr(nil) = %v, want fallback", got)
	}
	if got := IntOr(cfg, "attempts", 3); got != 5 {
		t.Errorf("IntOr(attempts) = %d, want 5", got)
	}
	if got := IntOr(cfg, "missing", 3); got != 3 {
		t.Errorf("IntOr(missing) = %d, want 3", got)
	}
	if got := BoolOr(cfg, "enabled", true); got {
		t.Error("BoolOr(enabled) = true, want explicit false")
	}
	if got := BoolOr(cfg, "missing", true); !got {
		t.Error("BoolOr(missing) = false, want fallback true")
	}
}
