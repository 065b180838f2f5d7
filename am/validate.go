package am

import (
	"sort"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/experiment"
	"github.com/teranos/ablation/query"
	"github.com/teranos/ablation/relationship"
)

// Validate checks that the configuration is valid. Every failure is a
// configuration error.
func (c *Config) Validate() error {
	// Seed is mandatory so that every run is reproducible
	if c.Experiment.Seed == nil {
		return errors.WithHint(
			errors.Configurationf("experiment.seed is required"),
			"set experiment.seed in am.toml or ABLATION_EXPERIMENT_SEED")
	}
	if *c.Experiment.Seed < 0 {
		return errors.Configurationf("experiment.seed must be >= 0, got %d", *c.Experiment.Seed)
	}

	if len(experiment.NewCombination(c.Experiment.Collections...)) < 2 {
		return errors.Configurationf("experiment.collections needs at least 2 distinct collections, got %d", len(c.Experiment.Collections))
	}
	if len(c.Experiment.Collections) > experiment.MaxCollections {
		return errors.Configurationf("experiment.collections supports at most %d collections, got %d",
			experiment.MaxCollections, len(c.Experiment.Collections))
	}
	for _, name := range c.Experiment.Collections {
		if name == "" {
			return errors.Configurationf("experiment.collections cannot contain empty names")
		}
	}

	if c.Experiment.Rounds < 1 {
		return errors.Configurationf("experiment.rounds must be >= 1, got %d", c.Experiment.Rounds)
	}
	if c.Experiment.ControlPercentage < 0 || c.Experiment.ControlPercentage > 1 {
		return errors.Configurationf("experiment.control_percentage must be within [0, 1], got %g", c.Experiment.ControlPercentage)
	}
	if c.Experiment.MaxCombinations < 1 {
		return errors.Configurationf("experiment.max_combinations must be >= 1, got %d", c.Experiment.MaxCombinations)
	}
	// Rotations: 0 = default, negative = invalid
	if c.Experiment.RotationsPerRound < 0 {
		return errors.Configurationf("experiment.rotations_per_round must be >= 0, got %d", c.Experiment.RotationsPerRound)
	}
	if c.Experiment.OutputDir == "" {
		return errors.Configurationf("experiment.output_dir cannot be empty")
	}

	if c.Restore.BatchSize < 1 {
		return errors.Configurationf("restore.batch_size must be >= 1, got %d", c.Restore.BatchSize)
	}
	// Pacing: 0 = unpaced, negative = invalid
	if c.Restore.BatchesPerSecond < 0 {
		return errors.Configurationf("restore.batches_per_second must be >= 0, got %g", c.Restore.BatchesPerSecond)
	}

	// Deterministic order so the first bad pair reported is stable
	for _, pair := range sortedKeys(c.Relationships) {
		if _, err := relationship.ParsePair(pair); err != nil {
			return errors.Wrapf(err, "relationships.%s", pair)
		}
		if len(c.Relationships[pair]) == 0 {
			return errors.Configurationf("relationships.%s must list at least one field", pair)
		}
	}

	return c.Terms.validate()
}

func (t TermsConfig) validate() error {
	for _, name := range sortedKeys(t.Vocabulary) {
		if query.ParseType(name) == query.TypeUnknown {
			return unknownType("terms.vocabulary." + name)
		}
		fields := t.Vocabulary[name]
		for _, field := range sortedKeys(fields) {
			if len(fields[field]) == 0 {
				return errors.Configurationf("terms.vocabulary.%s.%s must list at least one value", name, field)
			}
		}
	}
	for _, name := range sortedKeys(t.Indicators) {
		if query.ParseType(name) == query.TypeUnknown {
			return unknownType("terms.indicators." + name)
		}
	}
	return nil
}

func unknownType(key string) error {
	return errors.WithHintf(
		errors.Configurationf("%s: unknown activity type", key),
		"known types: %v", query.KnownTypes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
