package experiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/harness"
	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/truth"
)

const (
	// DefaultMaxCombinations caps sampled combinations per round.
	DefaultMaxCombinations = 20
	// exhaustiveLimit is the largest test group whose full power set is run.
	exhaustiveLimit = 4
)

// RunnerConfig extends the round parameters with the combination policy.
type RunnerConfig struct {
	RoundConfig
	MaxCombinations int
	// SkipEntityValidation seeds truth without checking that keys exist.
	SkipEntityValidation bool
}

// Runner drives a complete multi-round experiment over a query suite.
type Runner struct {
	cfg     RunnerConfig
	tester  *harness.Tester
	suite   *Suite
	rounds  *RoundManager
	emitter ProgressEmitter
	logger  *zap.SugaredLogger
	runID   string
}

// NewRunner validates cfg and prepares the round manager. A nil emitter
// discards progress.
func NewRunner(cfg RunnerConfig, tester *harness.Tester, suite *Suite, emitter ProgressEmitter, log *zap.SugaredLogger) (*Runner, error) {
	if tester == nil {
		return nil, errors.Configurationf("runner requires a tester")
	}
	if suite == nil || len(suite.Queries) == 0 {
		return nil, errors.Configurationf("runner requires a non-empty query suite")
	}
	if cfg.MaxCombinations == 0 {
		cfg.MaxCombinations = DefaultMaxCombinations
	}
	if cfg.MaxCombinations < 1 {
		return nil, errors.Configurationf("max combinations must be at least 1, got %d", cfg.MaxCombinations)
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = suite.Collections()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	log = logger.OrNop(log)

	rounds, err := NewRoundManager(cfg.RoundConfig, tester.Machine(), log)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		tester:  tester,
		suite:   suite,
		rounds:  rounds,
		emitter: emitter,
		logger:  log,
		runID:   uuid.NewString(),
	}, nil
}

// Rounds exposes the round manager.
func (r *Runner) Rounds() *RoundManager {
	return r.rounds
}

// SeedTruth stores every suite query's truth sets. Collections named by a
// query without a truth entry get an empty truth set.
func (r *Runner) SeedTruth(ctx context.Context) error {
	r.emitter.EmitStage("truth", fmt.Sprintf("seeding truth for %d queries", len(r.suite.Queries)))

	for _, q := range r.suite.Queries {
		sets := make(map[string][]string, len(q.Truth))
		for name, keys := range q.Truth {
			sets[name] = keys
		}
		for _, name := range q.Collections {
			if _, ok := sets[name]; !ok {
				sets[name] = []string{}
			}
		}

		var opts []truth.StoreOption
		if q.Synthetic || r.cfg.SkipEntityValidation {
			opts = append(opts, truth.SkipEntityValidation())
		}
		if err := r.tester.Truth().StoreUnified(ctx, q.ID, sets, opts...); err != nil {
			return errors.Wrapf(err, "seed truth for query %s", q.ID)
		}
	}

	r.logger.Infow("Seeded truth", logger.FieldCount, len(r.suite.Queries))
	return nil
}

// Combinations applies the per-round policy: every combination of a small
// test group, otherwise a covering sample capped at MaxCombinations. The
// all-but-one ablations are always included, so every collection is also
// measured with the rest of the group removed.
func (r *Runner) Combinations(test []string) ([]Combination, error) {
	gen, err := NewPowerSetGenerator(test, r.cfg.Seed)
	if err != nil {
		return nil, err
	}
	if len(test) <= exhaustiveLimit {
		return gen.All(1, 0)
	}

	sampled, err := gen.SmartSubset(r.cfg.MaxCombinations, true)
	if err != nil {
		return nil, err
	}
	all := append(sampled, gen.SingleAblations()...)
	SortCombinations(all)
	return slices.CompactFunc(all, func(a, b Combination) bool {
		return slices.Equal(a, b)
	}), nil
}

// Run executes every configured round and writes the cross-round report and
// the experiment summary. It returns the summary path.
func (r *Runner) Run(ctx context.Context) (string, error) {
	start := time.Now()
	ctx = logger.WithRunID(ctx, r.runID)

	if err := r.SeedTruth(ctx); err != nil {
		r.emitter.EmitError("truth", err)
		return "", err
	}

	var done []*Round
	for n := 1; n <= r.cfg.Rounds; n++ {
		round, err := r.RunRound(ctx, n)
		if err != nil {
			r.emitter.EmitError(fmt.Sprintf("round %d", n), err)
			return "", err
		}
		done = append(done, round)
	}

	if _, err := r.rounds.CrossRoundReport(); err != nil {
		return "", err
	}

	stats := r.rounds.StatisticalSummary()
	path := filepath.Join(r.cfg.OutputDir, "experiment_summary.md")
	elapsed := time.Since(start)
	if err := os.WriteFile(path, []byte(experimentSummary(r.cfg.RoundConfig, stats, done, elapsed)), 0o644); err != nil {
		return "", errors.Wrap(err, "write experiment summary")
	}

	r.emitter.EmitComplete(map[string]interface{}{
		"rounds":           stats.RoundsCompleted,
		"test_f1_variance": stats.TestF1Variance,
		"summary":          path,
		"duration_ms":      elapsed.Milliseconds(),
	})
	r.logger.Infow("Experiment complete",
		logger.FieldRunID, r.runID,
		logger.FieldPath, path,
		logger.FieldDurationMS, elapsed.Milliseconds(),
	)
	return path, nil
}

// RunRound starts round n, measures test queries under every combination of
// the test group and control queries at baseline on the control group, then
// stores and finishes the round.
func (r *Runner) RunRound(ctx context.Context, n int) (*Round, error) {
	round, err := r.rounds.StartRound(n)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithRound(ctx, n)
	log := logger.FromContext(ctx, r.logger)
	r.emitter.EmitRound(n, r.cfg.Rounds, round.TestCollections, round.ControlCollections)

	combinations, err := r.Combinations(round.TestCollections)
	if err != nil {
		return nil, err
	}
	for _, c := range combinations {
		round.Combinations = append(round.Combinations, c.Label())
	}
	log.Infow("Planned combinations", logger.FieldCount, len(combinations))

	groups := r.rounds.Groups()
	measured := 0
	for _, q := range r.suite.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		targets := q.TargetCollections()

		if groups.IsControlQuery(q.ID) {
			for _, c := range intersect(targets, round.ControlCollections) {
				res, err := r.tester.TestAblation(ctx, q.ID, q.Text, c, nil)
				if err != nil {
					return nil, err
				}
				round.AddControlResult(q.ID, c, res)
				measured++
			}
			continue
		}

		tested := intersect(targets, round.TestCollections)
		if len(tested) == 0 {
			continue
		}
		for _, c := range combinations {
			remaining := slices.DeleteFunc(slices.Clone(tested), c.Contains)
			if len(remaining) == 0 {
				continue
			}
			results, err := r.tester.MeasureCombination(ctx, q.ID, q.Text, c, remaining)
			if err != nil {
				return nil, err
			}
			round.AddResults(q.ID, results)
			measured += len(results)
		}
	}
	r.emitter.EmitProgress(measured, map[string]interface{}{"type": "measurements", "round": n})

	if err := r.rounds.StoreResults(); err != nil {
		return nil, err
	}
	if err := r.rounds.FinishRound(); err != nil {
		return nil, err
	}
	r.emitter.EmitInfo(fmt.Sprintf("round %d: test mean F1 %.4f, control mean F1 %.4f",
		n, round.Summary.TestMeanF1, round.Summary.ControlMeanF1))
	return round, nil
}

// intersect keeps the members of names that appear in group, in names order.
func intersect(names, group []string) []string {
	var out []string
	for _, n := range names {
		if slices.Contains(group, n) {
			out = append(out, n)
		}
	}
	return out
}
