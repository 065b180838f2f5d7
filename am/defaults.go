package am

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and the generated am.toml
const (
	DefaultDatabasePath      = "ablation.db"
	DefaultRounds            = 3
	DefaultControlPercentage = 0.2
	DefaultMaxCombinations   = 20
	DefaultRotationsPerRound = 2
	DefaultOutputDir         = "ablation_results"
	DefaultSuite             = "queries.yaml"
	DefaultBatchSize         = 1000
	DefaultSeed              = 42 // Written by am init; never applied implicitly
)

// DefaultCollections are the activity collections of the reference dataset
var DefaultCollections = []string{
	"AblationCollaborationActivity",
	"AblationLocationActivity",
	"AblationMediaActivity",
	"AblationMusicActivity",
	"AblationStorageActivity",
	"AblationTaskActivity",
}

// SetDefaults configures default values for all configuration options.
// experiment.seed has no default: runs must name their seed.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("experiment.collections", DefaultCollections)
	v.SetDefault("experiment.rounds", DefaultRounds)
	v.SetDefault("experiment.control_percentage", DefaultControlPercentage)
	v.SetDefault("experiment.max_combinations", DefaultMaxCombinations)
	v.SetDefault("experiment.rotations_per_round", DefaultRotationsPerRound)
	v.SetDefault("experiment.output_dir", DefaultOutputDir)
	v.SetDefault("experiment.suite", DefaultSuite)

	v.SetDefault("truth.skip_entity_validation", false)

	v.SetDefault("restore.batch_size", DefaultBatchSize)
	v.SetDefault("restore.batches_per_second", 0.0) // Unpaced
}

// BindEnvVars explicitly binds settings that AutomaticEnv cannot discover
// because they have no default.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("experiment.seed", EnvPrefix+"_EXPERIMENT_SEED")
	v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH")
}

// Default returns the configuration am init writes.
func Default() *Config {
	seed := int64(DefaultSeed)
	return &Config{
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Experiment: ExperimentConfig{
			Collections:       append([]string(nil), DefaultCollections...),
			Rounds:            DefaultRounds,
			ControlPercentage: DefaultControlPercentage,
			MaxCombinations:   DefaultMaxCombinations,
			RotationsPerRound: DefaultRotationsPerRound,
			Seed:              &seed,
			OutputDir:         DefaultOutputDir,
			Suite:             DefaultSuite,
		},
		Restore: RestoreConfig{BatchSize: DefaultBatchSize},
	}
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath // Fallback default
	}
	return c.Database.Path
}

// GetSeed returns the experiment seed, or -1 when unset
func (c *Config) GetSeed() int64 {
	if c.Experiment.Seed == nil {
		return -1
	}
	return *c.Experiment.Seed
}

// String returns a string representation of the config
func (c *Config) String() string {
	seed := "unset"
	if c.Experiment.Seed != nil {
		seed = fmt.Sprintf("%d", *c.Experiment.Seed)
	}
	return fmt.Sprintf("Config{Database: %s, Experiment: {Collections: [%s], Rounds: %d, Seed: %s}}",
		c.Database.Path, strings.Join(c.Experiment.Collections, ", "), c.Experiment.Rounds, seed)
}
