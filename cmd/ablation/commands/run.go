package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/ablation/display"
	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/experiment"
	"github.com/teranos/ablation/logger"
)

// RunCmd runs a multi-round ablation experiment
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a multi-round ablation experiment",
	Long: `Run the configured ablation experiment.

Truth from the query suite is stored first. Each round then splits the
collections into test and control groups, ablates combinations of the test
collections and scores every test query against its truth, while control
queries are scored at baseline. Groups rotate between rounds.

Every ablated collection is restored before the command returns, including
on failure or interrupt.

Outputs under experiment.output_dir:
  round_N/round_results.json     Per-round results
  round_N/round_N_report.md      Per-round report
  cross_round_analysis.md        Group rotation and F1 across rounds
  experiment_summary.md          Final summary

Examples:
  ablation run                          # Use am.toml
  ablation run --suite q.yaml --seed 7  # Override suite and seed
  ablation run --json                   # JSON progress events on stdout`,
	RunE: runExperiment,
}

var (
	runSuite  string
	runSeed   int64
	runRounds int
	runOutput string
)

func init() {
	RunCmd.Flags().StringVar(&runSuite, "suite", "", "Query suite YAML (overrides experiment.suite)")
	RunCmd.Flags().Int64Var(&runSeed, "seed", -1, "Random seed (overrides experiment.seed)")
	RunCmd.Flags().IntVar(&runRounds, "rounds", 0, "Number of rounds (overrides experiment.rounds)")
	RunCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output directory (overrides experiment.output_dir)")
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Experiment.Seed = &runSeed
	}
	if runRounds > 0 {
		cfg.Experiment.Rounds = runRounds
	}
	if runOutput != "" {
		cfg.Experiment.OutputDir = runOutput
	}
	if runSuite != "" {
		cfg.Experiment.Suite = runSuite
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	suite, err := experiment.LoadSuite(cfg.Experiment.Suite)
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	log := logger.Logger.Named("run")
	tester, err := newTester(cfg, database, log)
	if err != nil {
		return err
	}

	var emitter experiment.ProgressEmitter
	if display.ShouldOutputJSON(cmd) {
		emitter = experiment.NewJSONEmitter(cmd.OutOrStdout())
	} else {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		emitter = experiment.NewCLIEmitter(verbosity)
	}

	runner, err := experiment.NewRunner(experiment.RunnerConfig{
		RoundConfig: experiment.RoundConfig{
			Collections:       cfg.Experiment.Collections,
			Rounds:            cfg.Experiment.Rounds,
			ControlPercentage: cfg.Experiment.ControlPercentage,
			RotationsPerRound: cfg.Experiment.RotationsPerRound,
			Seed:              cfg.GetSeed(),
			OutputDir:         cfg.Experiment.OutputDir,
		},
		MaxCombinations:      cfg.Experiment.MaxCombinations,
		SkipEntityValidation: cfg.Truth.SkipEntityValidation,
	}, tester, suite, emitter, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, runErr := runner.Run(ctx)
	// Restores anything a failed run left ablated
	closeErr := tester.Close(context.WithoutCancel(ctx))
	if runErr != nil {
		if closeErr != nil {
			return errors.WithSecondaryError(runErr, closeErr)
		}
		return runErr
	}
	return closeErr
}
