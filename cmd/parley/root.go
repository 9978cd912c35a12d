package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Multi-party price negotiation engine",
	Long: `Parley orchestrates multi-round price negotiations across several
counterparties in parallel and commits a final allocation decision.

Each round, a drafting workflow produces one outbound message per
counterparty (parallel specialist analyses merged by a synthesis call),
the counterparty replies, and the reply is normalized into a validated
structured offer. After the round budget is exhausted, a decision engine
scores the final offers, evaluates split orders, and assigns line items.

Run a scenario from the command line:
  parley run scenario.yaml

Or serve negotiations over HTTP with live event streaming:
  parley serve`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
