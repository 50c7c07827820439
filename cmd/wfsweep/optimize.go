package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wfsweep/internal/domain"
	"wfsweep/internal/objective"
)

var (
	optParams      []string
	optMaxEvals    int
	optMetricsAddr string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Search strategy parameters against the memoized objective",
	Long: `Run a bounded coordinate-descent search over the given parameters. Every
probe is a full fold sweep under the objective scenario; repeated parameter
tuples are served from the cache.

Example usage:
  wfsweep optimize --param fast=5:30:5 --param slow=20:120:10`,
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringArrayVar(&optParams, "param", nil, "search dimension name=min:max:step (repeatable)")
	optimizeCmd.Flags().IntVar(&optMaxEvals, "max-evals", 0, "evaluation budget (overrides objective.max_evaluations)")
	optimizeCmd.Flags().StringVar(&optMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = optimizeCmd.MarkFlagRequired("param")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	dims := make([]objective.Dimension, 0, len(optParams))
	for _, p := range optParams {
		d, err := objective.ParseDimension(p)
		if err != nil {
			return err
		}
		dims = append(dims, d)
	}

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()
	addr := a.cfg.Metrics.Addr
	if optMetricsAddr != "" {
		addr = optMetricsAddr
	}
	a.serveMetrics(addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.runner.Prepare(ctx); err != nil {
		return err
	}

	oc := a.cfg.Objective
	obj, err := objective.New(objective.Config{
		CacheSize:   oc.CacheSize,
		FloorPF:     oc.FloorPF,
		FloorSharpe: oc.FloorSharpe,
		PFCap:       oc.PFCap,
		MinTrades:   oc.MinTrades,
	}, a.runner.Evaluate, a.metrics)
	if err != nil {
		return err
	}

	ocfg := objective.DefaultOptimizerConfig()
	ocfg.MaxEvaluations = oc.MaxEvaluations
	if optMaxEvals > 0 {
		ocfg.MaxEvaluations = optMaxEvals
	}
	cd, err := objective.NewCoordinateDescent(ocfg, dims, obj.Loss)
	if err != nil {
		return err
	}

	scenarios, _ := a.cfg.Scenarios()
	sc := scenarios[0]
	for _, s := range scenarios {
		if string(s.ID) == oc.Scenario {
			sc = s
		}
	}
	// Scenario overrides win over searched values, as they do in run.
	start := domain.NewParameterSet(a.cfg.Sweep.BaseParams, sc).With(a.runner.Overrides(sc.ID))
	for _, d := range dims {
		if _, ok := a.runner.Overrides(sc.ID)[d.Name]; ok {
			a.log.Warn("dimension is fixed by a scenario override", "param", d.Name, "scenario", sc.ID)
		}
	}

	a.log.Info("optimization starting", "scenario", sc.ID, "dimensions", len(dims), "budget", ocfg.MaxEvaluations)
	res, err := cd.Minimize(ctx, start)
	if err != nil {
		return err
	}
	stats := obj.Stats()
	a.log.Info("optimization done",
		"evaluations", res.Evaluations,
		"converged", res.Converged,
		"bestLoss", res.BestLoss,
		"cacheHits", stats.Hits,
		"cacheMisses", stats.Misses,
	)

	out := struct {
		Scenario domain.ScenarioID             `json:"scenario"`
		Result   objective.OptimizationResult `json:"result"`
		Cache    objective.CacheStats          `json:"cache"`
	}{sc.ID, res, stats}
	out.Result.History = nil

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}
