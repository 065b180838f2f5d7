package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/ablation/cmd/ablation/commands"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ablation",
	Short: "Ablation testing harness for activity collections",
	Long: `ablation - Measure how removing activity collections affects query results.

ablation stores ground truth per query, removes ("ablates") collections and
restores them, and scores every query against its truth under each ablation.
Multi-round experiments split collections into test and control groups and
rotate them between rounds.

Available commands:
  run     - Run a multi-round ablation experiment
  truth   - Load and inspect ground truth
  db      - Migrate, import fixtures and inspect the database
  am      - Manage configuration ("I am")
  version - Show version information

Examples:
  ablation am init                    # Write a default am.toml
  ablation db import fixture.yaml     # Load collections from a fixture
  ablation truth load queries.yaml    # Store ground truth from a query suite
  ablation run -v                     # Run the configured experiment`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON output and logs")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: am.toml cascade)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.TruthCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

// exitCode maps the error taxonomy onto process exit codes.
func exitCode(err error) int {
	switch {
	case errors.IsIntegrity(err):
		return 2
	case errors.IsConnectivity(err):
		return 3
	case errors.IsConfiguration(err):
		return 4
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", errors.Category(err), err)
		if details := errors.FlattenDetails(err); details != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", details)
		}
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}
		os.Exit(exitCode(err))
	}
}
