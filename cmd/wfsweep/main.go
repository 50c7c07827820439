// Command wfsweep runs walk-forward cost-sensitivity sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wfsweep",
	Short: "Walk-forward cost-sensitivity sweeps",
	Long: `wfsweep partitions a price series into walk-forward folds, runs a
strategy on every (fold, cost scenario) pair in parallel and reports how
profitability degrades as transaction costs rise.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wfsweep %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $WFSWEEP_CONFIG or config/wfsweep.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
