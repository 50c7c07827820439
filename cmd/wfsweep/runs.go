package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wfsweep/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("run ledger disabled: storage.sqlite_path is not set")
		}
		ledger, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer ledger.Close()

		runs, err := ledger.ListRuns(context.Background(), runsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tSTRATEGY\tSYMBOL\tTASKS\tDONE\tFAILED\tSKIPPED\tCANCELLED\tWALL")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.StartedAt.Format(time.DateTime), r.Strategy, r.Symbol,
				r.Total, r.Completed, r.Failed, r.Skipped, r.Cancelled,
				time.Duration(r.WallSeconds*float64(time.Second)).Round(time.Millisecond))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to show")
}
