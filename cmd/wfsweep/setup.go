package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wfsweep/internal/config"
	"wfsweep/internal/data"
	"wfsweep/internal/metrics"
	"wfsweep/internal/store"
	"wfsweep/internal/strategy/builtins"
	"wfsweep/internal/sweep"
	"wfsweep/internal/util"
)

// app holds everything built from the config for one command.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Metrics
	ledger  *store.SQLiteStore
	runner  *sweep.Runner
	server  *http.Server
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newApp loads and validates config and wires the runner. Overrides from
// flags must be applied by mutate before validation.
func newApp(mutate func(*config.Config)) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	a := &app{cfg: cfg, log: log, metrics: metrics.New(prometheus.DefaultRegisterer)}

	if cfg.Storage.SQLitePath != "" {
		if a.ledger, err = store.NewSQLiteStore(cfg.Storage.SQLitePath); err != nil {
			return nil, fmt.Errorf("opening run ledger: %w", err)
		}
	}

	provider, err := newProvider(cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	scenarios, overrides := cfg.Scenarios()
	deps := sweep.Deps{Metrics: a.metrics, Logger: log}
	if a.ledger != nil {
		deps.Ledger = a.ledger
	}
	a.runner = sweep.New(sweep.Config{
		Strategy:    cfg.Sweep.Strategy,
		BaseParams:  cfg.Sweep.BaseParams,
		Scenarios:   scenarios,
		Overrides:   overrides,
		Folds:       cfg.Sweep.Folds,
		MinFoldSize: cfg.Sweep.MinFoldSize,
		PipValue:    cfg.Sweep.PipValue,
		Workers:     cfg.Sweep.Workers,
		TaskTimeout: cfg.Sweep.TaskTimeout,
		Deadline:    cfg.Sweep.Deadline,
		OutputPath:  cfg.Sweep.OutputPath,
		PFCap:       cfg.Objective.PFCap,
	}, provider, builtins.DefaultRegistry(), deps)
	return a, nil
}

func newProvider(cfg *config.Config, log *slog.Logger) (data.DataProvider, error) {
	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	switch cfg.Data.Source {
	case "synthetic":
		return data.NewSyntheticProvider(cfg.Data.Symbol, cfg.Data.Bars, cfg.Data.Seed, cfg.Data.MinBars), nil
	case "alpaca":
		client := data.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
		return data.NewAlpacaProvider(client, data.AlpacaOptions{
			Symbol:          cfg.Data.Symbol,
			Market:          cfg.Data.Market,
			Start:           start,
			End:             end,
			MinBars:         cfg.Data.MinBars,
			RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
			MaxRetries:      cfg.Alpaca.MaxRetries,
			Cache:           store.NewParquetStore(cfg.Storage.DataDir),
		}, log), nil
	default:
		ps := store.NewParquetStore(cfg.Storage.DataDir)
		return data.NewStoreProvider(ps, cfg.Data.Symbol, cfg.Data.Market, start, end, cfg.Data.MinBars), nil
	}
}

// serveMetrics starts the Prometheus endpoint when addr is non-empty.
func (a *app) serveMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("metrics listening", "addr", addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server failed", "err", err)
		}
	}()
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("closing ledger", "err", err)
		}
	}
}
