package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wfsweep/internal/config"
	"wfsweep/internal/engine"
	"wfsweep/internal/report"
	"wfsweep/internal/sweep"
)

var (
	runChunk       []int
	runWorkers     int
	runSequential  bool
	runOutput      string
	runMetricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fold x scenario sweep and write the report",
	Long: `Run every (fold, cost scenario) task, or an inclusive range of task ids,
and write the sensitivity report.

Example usage:
  wfsweep run
  wfsweep run --chunk 0 9          # tasks 0..9 only
  wfsweep run --workers 4 --output out/report.json
  wfsweep run --sequential`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntSliceVar(&runChunk, "chunk", nil, "inclusive task id range START END (or START,END)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "worker count (default: CPUs - 1)")
	runCmd.Flags().BoolVar(&runSequential, "sequential", false, "run tasks one at a time")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "report path (overrides sweep.output_path)")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// parseChunk accepts --chunk START END (END as the positional argument) and
// --chunk START,END.
func parseChunk(vals []int, args []string) (*report.Chunk, error) {
	switch {
	case len(vals) == 0 && len(args) == 0:
		return nil, nil
	case len(vals) == 0:
		return nil, fmt.Errorf("unexpected argument %q", args[0])
	case len(vals) == 1 && len(args) == 1:
		end, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("chunk end %q: %w", args[0], err)
		}
		return &report.Chunk{Start: vals[0], End: end}, nil
	case len(vals) == 2 && len(args) == 0:
		return &report.Chunk{Start: vals[0], End: vals[1]}, nil
	}
	return nil, fmt.Errorf("--chunk takes exactly START END")
}

func runSweep(cmd *cobra.Command, args []string) error {
	chunk, err := parseChunk(runChunk, args)
	if err != nil {
		return err
	}

	a, err := newApp(func(c *config.Config) {
		if cmd.Flags().Changed("workers") {
			c.Sweep.Workers = runWorkers
		}
		if runOutput != "" {
			c.Sweep.OutputPath = runOutput
		}
		if runMetricsAddr != "" {
			c.Metrics.Addr = runMetricsAddr
		}
	})
	if err != nil {
		return err
	}
	defer a.close()
	a.serveMetrics(a.cfg.Metrics.Addr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.runner.Prepare(ctx); err != nil {
		return err
	}

	progress := make(chan engine.Progress, 16)
	rendered := make(chan struct{})
	go func() {
		renderProgress(progress, a.log, 5*time.Second)
		close(rendered)
	}()

	opts := sweep.RunOptions{Chunk: chunk, Progress: progress}
	var res sweep.Result
	if runSequential {
		res, err = a.runner.RunSequential(ctx, opts)
	} else {
		res, err = a.runner.Run(ctx, opts)
	}
	close(progress)
	<-rendered
	if err != nil {
		return err
	}

	printSummary(res.Document)
	return nil
}

func printSummary(doc report.Document) {
	w := os.Stdout
	s := doc.TaskSummary
	fmt.Fprintf(w, "run %s: %d tasks, %d completed, %d failed, %d skipped, %d cancelled\n",
		doc.RunID, s.Total, s.Completed, s.Failed, s.Skipped, s.Cancelled)
	for _, sr := range doc.SensitivityReport {
		pf, _ := sr.ProfitFactor.MarshalJSON()
		raw, _ := sr.RawProfitFactor.MarshalJSON()
		fmt.Fprintf(w, "  %-16s cost %5.2f pips  trades %5d  pf %s (raw %s)  net %.4f  p=%.4f\n",
			sr.Label, float64(sr.TotalCostPips), sr.TotalTrades, pf, raw, float64(sr.NetProfit), float64(sr.Significance.PValue))
	}
}
