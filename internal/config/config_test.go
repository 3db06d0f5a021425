package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address = %s, want :8080", cfg.Server.Address)
	}
	if cfg.Forecast.Granularity != 24*time.Hour {
		t.Errorf("granularity = %v, want 24h", cfg.Forecast.Granularity)
	}
	if cfg.Forecast.SeasonLength != 7 || cfg.Forecast.MinHistoryCycles != 2 {
		t.Errorf("season config = %d/%d, want 7/2", cfg.Forecast.SeasonLength, cfg.Forecast.MinHistoryCycles)
	}
	if cfg.Alerts.CriticalFraction != 0.4 || cfg.Alerts.WarningFraction != 0.6 {
		t.Errorf("fractions = %v/%v, want 0.4/0.6", cfg.Alerts.CriticalFraction, cfg.Alerts.WarningFraction)
	}
	if cfg.Retrieval.MaxTopK != 25 {
		t.Errorf("maxTopK = %d, want 25", cfg.Retrieval.MaxTopK)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
forecast:
  defaultHorizon: 14
  maxHorizon: 21
scheduler:
  enabled: false
  storeIDs:
    - "store-9"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Forecast.DefaultHorizon != 14 || cfg.Forecast.MaxHorizon != 21 {
		t.Errorf("horizons = %d/%d, want 14/21", cfg.Forecast.DefaultHorizon, cfg.Forecast.MaxHorizon)
	}
	if cfg.Scheduler.Enabled {
		t.Error("scheduler should be disabled")
	}
	if len(cfg.Scheduler.StoreIDs) != 1 || cfg.Scheduler.StoreIDs[0] != "store-9" {
		t.Errorf("storeIDs = %v, want [store-9]", cfg.Scheduler.StoreIDs)
	}
	// Untouched sections keep their defaults.
	if cfg.Forecast.SeasonLength != 7 {
		t.Errorf("seasonLength = %d, want default 7", cfg.Forecast.SeasonLength)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MODULARAI_POS_BASE_URL", "http://pos.internal:9000")
	t.Setenv("MODULARAI_DEFAULT_HORIZON", "10")
	t.Setenv("MODULARAI_SCHEDULER_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Clients.POS.BaseURL != "http://pos.internal:9000" {
		t.Errorf("pos base URL = %s", cfg.Clients.POS.BaseURL)
	}
	if cfg.Forecast.DefaultHorizon != 10 {
		t.Errorf("default horizon = %d, want 10", cfg.Forecast.DefaultHorizon)
	}
	if cfg.Scheduler.Enabled {
		t.Error("scheduler should be disabled via env")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero granularity", func(c *Config) { c.Forecast.Granularity = 0 }},
		{"horizon inversion", func(c *Config) { c.Forecast.DefaultHorizon = 30; c.Forecast.MaxHorizon = 7 }},
		{"fraction order", func(c *Config) { c.Alerts.CriticalFraction = 0.8; c.Alerts.WarningFraction = 0.5 }},
		{"topK", func(c *Config) { c.Retrieval.MaxTopK = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			if err := validate(&cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
