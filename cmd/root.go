package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quant-research",
	Short: "Rule-mining research platform: signal generation, backtesting and statistical validation",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(migrateCmd)
}
