package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wfsweep.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DATA_DIR", "SQLITE_PATH", "LOG_LEVEL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "WFSWEEP_WORKERS", "WFSWEEP_OUTPUT"} {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/tmp/wfsweep/data"
  sqlite_path: "/tmp/wfsweep/ledger.db"
logging:
  level: "debug"
  format: "text"
data:
  source: parquet
  symbol: EURUSD
  market: fx
  start: "2015-01-01"
  end: "2024-12-31"
sweep:
  folds: 4
  workers: 3
  task_timeout: 30s
  deadline: 10m
  strategy: sma-cross
  base_params:
    fast: 10
    slow: 50
  scenarios:
    - label: Standard
      spread_pips: 1.5
      commission_pips: 0.3
    - id: wide
      label: "Wide spread"
      spread_pips: 3.0
      commission_pips: 1.0
      params:
        slow: 80
objective:
  pf_cap: 5
  scenario: wide
metrics:
  addr: ":9108"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	// -- Storage / logging --
	if cfg.Storage.DataDir != "/tmp/wfsweep/data" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want text", cfg.Logging.Format)
	}

	// -- Sweep --
	if cfg.Sweep.Folds != 4 || cfg.Sweep.Workers != 3 {
		t.Errorf("Sweep folds/workers = %d/%d, want 4/3", cfg.Sweep.Folds, cfg.Sweep.Workers)
	}
	if cfg.Sweep.TaskTimeout != 30*time.Second || cfg.Sweep.Deadline != 10*time.Minute {
		t.Errorf("Sweep timeouts = %v/%v", cfg.Sweep.TaskTimeout, cfg.Sweep.Deadline)
	}
	if cfg.Sweep.MinFoldSize != 200 || cfg.Sweep.PipValue != 0.0001 {
		t.Errorf("defaults not applied: min_fold_size=%d pip_value=%g", cfg.Sweep.MinFoldSize, cfg.Sweep.PipValue)
	}

	scs, ovs := cfg.Scenarios()
	if len(scs) != 2 {
		t.Fatalf("got %d scenarios, want 2", len(scs))
	}
	if scs[0].ID != "standard" || scs[0].Label != "Standard" {
		t.Errorf("scenario 0 = %+v, want id derived from label", scs[0])
	}
	if scs[1].ID != "wide" || ovs[1]["slow"] != 80 || ovs[0] != nil {
		t.Errorf("scenario 1 = %+v overrides %v", scs[1], ovs)
	}

	// -- Objective --
	if cfg.Objective.PFCap != 5 || cfg.Objective.CacheSize != 32 || cfg.Objective.MinTrades != 30 {
		t.Errorf("Objective = %+v", cfg.Objective)
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange: %v", err)
	}
	if start.Year() != 2015 || end.Year() != 2024 {
		t.Errorf("DateRange = %v..%v", start, end)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
storage:
  data_dir: "/original/data"
`)

	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("DATA_DIR", "/env/data")
	t.Setenv("WFSWEEP_WORKERS", "6")
	t.Setenv("WFSWEEP_OUTPUT", "/tmp/out.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Storage.DataDir != "/env/data" {
		t.Errorf("Storage.DataDir = %q, want %q (env override)", cfg.Storage.DataDir, "/env/data")
	}
	if cfg.Sweep.Workers != 6 || cfg.Sweep.OutputPath != "/tmp/out.json" {
		t.Errorf("sweep overrides: workers=%d output=%q", cfg.Sweep.Workers, cfg.Sweep.OutputPath)
	}

	t.Setenv("WFSWEEP_WORKERS", "many")
	if _, err := Load(path); err == nil {
		t.Error("non-numeric WFSWEEP_WORKERS accepted")
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	if cfg.Sweep.Folds != 5 || cfg.Data.MinBars != 1000 || cfg.Objective.CacheSize != 32 {
		t.Errorf("defaults = folds %d, min_bars %d, cache %d", cfg.Sweep.Folds, cfg.Data.MinBars, cfg.Objective.CacheSize)
	}
	if len(cfg.Sweep.Scenarios) != 2 || cfg.Sweep.Scenarios[1].ID != "high-cost" {
		t.Errorf("default scenarios = %+v", cfg.Sweep.Scenarios)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative spread", func(c *Config) { c.Sweep.Scenarios[0].SpreadPips = -1 }, "negative cost"},
		{"duplicate scenario", func(c *Config) { c.Sweep.Scenarios[1].ID = c.Sweep.Scenarios[0].ID }, "used twice"},
		{"zero folds", func(c *Config) { c.Sweep.Folds = -1 }, "sweep.folds"},
		{"unknown source", func(c *Config) { c.Data.Source = "csv" }, "data.source"},
		{"alpaca without keys", func(c *Config) { c.Data.Source = "alpaca" }, "api_key"},
		{"bad date", func(c *Config) { c.Data.Start = "01/02/2020" }, "data.start"},
		{"unknown objective scenario", func(c *Config) { c.Objective.Scenario = "nope" }, "objective.scenario"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Data: DataConfig{Symbol: "EURUSD"}}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("base config invalid: %v", err)
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
