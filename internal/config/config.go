package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"wfsweep/internal/domain"
)

// DefaultPath is used when neither --config nor WFSWEEP_CONFIG is set.
const DefaultPath = "config/wfsweep.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for wfsweep.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Logging   Logging         `yaml:"logging"`
	Data      DataConfig      `yaml:"data"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Objective ObjectiveConfig `yaml:"objective"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// Storage holds paths for data persistence. An empty SQLitePath disables
// the run ledger.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DataConfig selects and bounds the price series.
type DataConfig struct {
	// Source is one of "parquet", "alpaca" or "synthetic".
	Source  string `yaml:"source"`
	Symbol  string `yaml:"symbol"`
	Market  string `yaml:"market"`
	Start   string `yaml:"start"` // YYYY-MM-DD
	End     string `yaml:"end"`   // YYYY-MM-DD
	MinBars int    `yaml:"min_bars"`

	// Synthetic series settings.
	Bars int   `yaml:"bars"`
	Seed int64 `yaml:"seed"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxRetries      int    `yaml:"max_retries"`
}

// ScenarioConfig is one cost scenario. ID defaults to a slug of Label.
// Params override base strategy parameters under this scenario only.
type ScenarioConfig struct {
	ID             string             `yaml:"id"`
	Label          string             `yaml:"label"`
	SpreadPips     float64            `yaml:"spread_pips"`
	CommissionPips float64            `yaml:"commission_pips"`
	Params         map[string]float64 `yaml:"params"`
}

// SweepConfig controls fold partitioning and execution.
type SweepConfig struct {
	Folds       int                `yaml:"folds"`
	MinFoldSize int                `yaml:"min_fold_size"`
	Workers     int                `yaml:"workers"`
	TaskTimeout time.Duration      `yaml:"task_timeout"`
	Deadline    time.Duration      `yaml:"deadline"`
	PipValue    float64            `yaml:"pip_value"`
	OutputPath  string             `yaml:"output_path"`
	Strategy    string             `yaml:"strategy"`
	BaseParams  map[string]float64 `yaml:"base_params"`
	Scenarios   []ScenarioConfig   `yaml:"scenarios"`
}

// ObjectiveConfig configures the memoized objective and the optimizer.
type ObjectiveConfig struct {
	CacheSize      int     `yaml:"cache_size"`
	FloorPF        float64 `yaml:"floor_pf"`
	FloorSharpe    float64 `yaml:"floor_sharpe"`
	PFCap          float64 `yaml:"pf_cap"`
	MinTrades      int     `yaml:"min_trades"`
	Scenario       string  `yaml:"scenario"`
	MaxEvaluations int     `yaml:"max_evaluations"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the config path from WFSWEEP_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("WFSWEEP_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("WFSWEEP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WFSWEEP_WORKERS: %w", err)
		}
		cfg.Sweep.Workers = n
	}
	if v := os.Getenv("WFSWEEP_OUTPUT"); v != "" {
		cfg.Sweep.OutputPath = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

// ApplyDefaults fills unset fields with their stock values.
func (c *Config) ApplyDefaults() {
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Data.Source == "" {
		c.Data.Source = "parquet"
	}
	if c.Data.Market == "" {
		c.Data.Market = "fx"
	}
	if c.Data.MinBars == 0 {
		c.Data.MinBars = 1000
	}
	if c.Data.Bars == 0 {
		c.Data.Bars = 2000
	}
	if c.Data.Seed == 0 {
		c.Data.Seed = 1
	}

	if c.Alpaca.DataURL == "" {
		c.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	if c.Alpaca.RateLimitPerMin == 0 {
		c.Alpaca.RateLimitPerMin = 200
	}
	if c.Alpaca.MaxRetries == 0 {
		c.Alpaca.MaxRetries = 3
	}

	if c.Sweep.Folds == 0 {
		c.Sweep.Folds = 5
	}
	if c.Sweep.MinFoldSize == 0 {
		c.Sweep.MinFoldSize = 200
	}
	if c.Sweep.PipValue == 0 {
		c.Sweep.PipValue = 0.0001
	}
	if c.Sweep.OutputPath == "" {
		c.Sweep.OutputPath = "sensitivity_report.json"
	}
	if c.Sweep.Strategy == "" {
		c.Sweep.Strategy = "sma-cross"
	}
	if len(c.Sweep.Scenarios) == 0 {
		c.Sweep.Scenarios = []ScenarioConfig{
			{Label: "standard", SpreadPips: 1.5, CommissionPips: 0.3},
			{Label: "high-cost", SpreadPips: 3.0, CommissionPips: 1.0},
		}
	}
	for i := range c.Sweep.Scenarios {
		sc := &c.Sweep.Scenarios[i]
		if sc.ID == "" {
			sc.ID = string(domain.ScenarioIDFromLabel(sc.Label))
		}
		if sc.Label == "" {
			sc.Label = sc.ID
		}
	}

	if c.Objective.CacheSize == 0 {
		c.Objective.CacheSize = 32
	}
	if c.Objective.FloorPF == 0 {
		c.Objective.FloorPF = 0.01
	}
	if c.Objective.FloorSharpe == 0 {
		c.Objective.FloorSharpe = -1.0
	}
	if c.Objective.PFCap == 0 {
		c.Objective.PFCap = 10
	}
	if c.Objective.MinTrades == 0 {
		c.Objective.MinTrades = 30
	}
	if c.Objective.MaxEvaluations == 0 {
		c.Objective.MaxEvaluations = 100
	}
}

// Validate rejects configurations that cannot produce a run.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Data.Source {
	case "parquet", "synthetic":
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			add("data.source alpaca requires alpaca.api_key and alpaca.api_secret")
		}
	default:
		add("data.source %q: want parquet, alpaca or synthetic", c.Data.Source)
	}
	if c.Data.Source != "synthetic" && c.Data.Symbol == "" {
		add("data.symbol is required for source %q", c.Data.Source)
	}
	for _, d := range []struct{ name, v string }{{"data.start", c.Data.Start}, {"data.end", c.Data.End}} {
		if d.v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d.v); err != nil {
			add("%s: %w", d.name, err)
		}
	}
	if c.Data.MinBars < 1 {
		add("data.min_bars must be positive, got %d", c.Data.MinBars)
	}

	if c.Sweep.Folds < 1 {
		add("sweep.folds must be positive, got %d", c.Sweep.Folds)
	}
	if c.Sweep.MinFoldSize < 1 {
		add("sweep.min_fold_size must be positive, got %d", c.Sweep.MinFoldSize)
	}
	if c.Sweep.Workers < 0 {
		add("sweep.workers must not be negative, got %d", c.Sweep.Workers)
	}
	if c.Sweep.TaskTimeout < 0 || c.Sweep.Deadline < 0 {
		add("sweep.task_timeout and sweep.deadline must not be negative")
	}
	if c.Sweep.PipValue <= 0 {
		add("sweep.pip_value must be positive, got %g", c.Sweep.PipValue)
	}
	seen := make(map[string]bool, len(c.Sweep.Scenarios))
	for _, sc := range c.Sweep.Scenarios {
		if err := sc.Scenario().Validate(); err != nil {
			errs = append(errs, err)
		}
		if seen[sc.ID] {
			add("scenario id %q used twice", sc.ID)
		}
		seen[sc.ID] = true
	}
	if c.Objective.Scenario != "" && !seen[c.Objective.Scenario] {
		add("objective.scenario %q is not a configured scenario", c.Objective.Scenario)
	}

	if c.Objective.CacheSize < 1 {
		add("objective.cache_size must be positive, got %d", c.Objective.CacheSize)
	}
	if c.Objective.FloorPF <= 0 {
		add("objective.floor_pf must be positive, got %g", c.Objective.FloorPF)
	}
	if c.Objective.PFCap <= 0 {
		add("objective.pf_cap must be positive, got %g", c.Objective.PFCap)
	}
	if c.Objective.MinTrades < 0 {
		add("objective.min_trades must not be negative, got %d", c.Objective.MinTrades)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Scenario converts the configured scenario to its domain form.
func (s ScenarioConfig) Scenario() domain.Scenario {
	return domain.Scenario{
		ID:             domain.ScenarioID(s.ID),
		Label:          s.Label,
		SpreadPips:     s.SpreadPips,
		CommissionPips: s.CommissionPips,
	}
}

// Scenarios returns the configured scenarios and their parameter overrides,
// in configured order.
func (c *Config) Scenarios() ([]domain.Scenario, []map[string]float64) {
	scs := make([]domain.Scenario, len(c.Sweep.Scenarios))
	ovs := make([]map[string]float64, len(c.Sweep.Scenarios))
	for i, sc := range c.Sweep.Scenarios {
		scs[i] = sc.Scenario()
		ovs[i] = sc.Params
	}
	return scs, ovs
}

// DateRange parses Data.Start and Data.End. Zero times mean unset.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Data.Start != "" {
		if start, err = time.Parse(time.DateOnly, c.Data.Start); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("data.start: %w", err)
		}
	}
	if c.Data.End != "" {
		if end, err = time.Parse(time.DateOnly, c.Data.End); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("data.end: %w", err)
		}
	}
	return start, end, nil
}
