// Package cmd wires the CLI. Configuration and the global logger are
// initialized once in the root pre-run; subcommands assume both are ready.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fernandes-group/tenderscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tenderscan",
	Short: "Discover medical-supply tenders in the Brazilian procurement registry",
	Long: `tenderscan scans the PNCP registry for medical-supply tenders through a
staged funnel: bulk listing fetch, zero-call quick filtering, bounded item
sampling and full classification. An organization reputation cache carries
verdicts across runs so repeat buyers cost no API calls.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		if err := config.InitLogger(c.Log); err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
