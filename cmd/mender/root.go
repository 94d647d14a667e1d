package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mender",
	Short: "Autonomous software-engineering task runner",
	Long: `Mender takes one software-engineering task and drives it to a reviewed
patch: a planner picks the next action each cycle, specialized sub-agents
probe the codebase, locate relevant code, edit, run tests, and answer
version-control questions, and every produced diff is kept in an in-run
store so later actions can build on earlier ones.

The checkout is owned exclusively for the run's duration and is restored
between actions, so the only lasting output is the final patch written to
.mender/runs/<id>/ along with a YAML report of every step taken.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
