package harness

import (
	"context"
	"strings"

	"github.com/teranos/ablation/logger"
	"github.com/teranos/ablation/metrics"
	"github.com/teranos/ablation/query"
	"github.com/teranos/ablation/relationship"
)

// ImpactKey names the result of measuring test while ablated is removed.
func ImpactKey(ablated, test string) string {
	return ablated + "_impact_on_" + test
}

// CombinationLabel joins the members of a combination.
func CombinationLabel(combination []string) string {
	return strings.Join(combination, "+")
}

// RunAblationTest measures every collection at baseline, then ablates each
// collection in turn and measures its impact on all the others. Results are
// keyed by ImpactKey.
func (t *Tester) RunAblationTest(ctx context.Context, queryID, text string, collections []string) (map[string]metrics.AblationResult, error) {
	log := logger.FromContext(logger.WithQueryID(ctx, queryID), t.logger)

	related, err := t.relatedFor(ctx, text, collections)
	if err != nil {
		return nil, err
	}

	baseline := make(map[string]metrics.AblationResult, len(collections))
	for _, c := range collections {
		r, err := t.TestAblation(ctx, queryID, text, c, related[c])
		if err != nil {
			return nil, err
		}
		baseline[c] = r
		log.Infow("Baseline measured",
			logger.FieldCollection, c,
			logger.FieldPrecision, r.Precision,
			logger.FieldRecall, r.Recall,
			logger.FieldF1, r.F1,
		)
	}

	results := make(map[string]metrics.AblationResult)
	for _, ablated := range collections {
		err := t.machine.WithAblation(ctx, []string{ablated}, func(ctx context.Context) error {
			for _, test := range collections {
				if test == ablated {
					continue
				}
				remaining := without(related[test], ablated)

				r, err := t.TestAblation(ctx, queryID, text, test, remaining)
				if err != nil {
					return err
				}
				r.Metadata.AblatedCollection = ablated
				r.Metadata.RemainingRelated = remaining
				results[ImpactKey(ablated, test)] = r

				log.Infow("Measured ablation impact",
					logger.FieldAblated, ablated,
					logger.FieldCollection, test,
					"baseline_f1", baseline[test].F1,
					logger.FieldF1, r.F1,
				)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// MeasureCombination ablates every member of combination together and
// measures each target. Results are keyed by ImpactKey with the combination
// label as the ablated name.
func (t *Tester) MeasureCombination(ctx context.Context, queryID, text string, combination, targets []string) (map[string]metrics.AblationResult, error) {
	log := logger.FromContext(logger.WithQueryID(ctx, queryID), t.logger)
	label := CombinationLabel(combination)

	related, err := t.relatedFor(ctx, text, targets)
	if err != nil {
		return nil, err
	}

	results := make(map[string]metrics.AblationResult, len(targets))
	err = t.machine.WithAblation(ctx, combination, func(ctx context.Context) error {
		for _, target := range targets {
			remaining := related[target]
			for _, member := range combination {
				remaining = without(remaining, member)
			}

			r, err := t.TestAblation(ctx, queryID, text, target, remaining)
			if err != nil {
				return err
			}
			r.Metadata.AblatedCollection = label
			r.Metadata.RemainingRelated = remaining
			results[ImpactKey(label, target)] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infow("Measured combination",
		logger.FieldCombination, label,
		logger.FieldCount, len(results),
	)
	return results, nil
}

// relatedFor infers related collections per collection when text references
// other activity types.
func (t *Tester) relatedFor(ctx context.Context, text string, collections []string) (map[string][]string, error) {
	related := make(map[string][]string, len(collections))
	if !t.extractor.Extract(text, query.TypeUnknown).HasCrossReference() {
		return related, nil
	}

	available := t.collections
	if len(available) == 0 {
		available = collections
	}
	for _, c := range collections {
		names, err := t.existing(ctx, c, relationship.InferRelated(c, text, available))
		if err != nil {
			return nil, err
		}
		related[c] = names
	}
	return related, nil
}

// without never returns nil, so the result never triggers inference.
func without(names []string, drop string) []string {
	out := []string{}
	for _, n := range names {
		if n != drop {
			out = append(out, n)
		}
	}
	return out
}
