package am

// Config represents the ablation harness configuration
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database" toml:"database"`
	Experiment    ExperimentConfig    `mapstructure:"experiment" toml:"experiment"`
	Truth         TruthConfig         `mapstructure:"truth" toml:"truth"`
	Restore       RestoreConfig       `mapstructure:"restore" toml:"restore"`
	Relationships map[string][]string `mapstructure:"relationships" toml:"relationships,omitempty"`
	Terms         TermsConfig         `mapstructure:"terms" toml:"terms,omitempty"`
}

// DatabaseConfig configures the SQLite database holding collections and truth
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ExperimentConfig configures a multi-round ablation experiment
type ExperimentConfig struct {
	Collections       []string `mapstructure:"collections" toml:"collections"`
	Rounds            int      `mapstructure:"rounds" toml:"rounds"`
	ControlPercentage float64  `mapstructure:"control_percentage" toml:"control_percentage"`
	MaxCombinations   int      `mapstructure:"max_combinations" toml:"max_combinations"`
	RotationsPerRound int      `mapstructure:"rotations_per_round" toml:"rotations_per_round"`
	Seed              *int64   `mapstructure:"seed" toml:"seed"` // Mandatory: nil is rejected by Validate
	OutputDir         string   `mapstructure:"output_dir" toml:"output_dir"`
	Suite             string   `mapstructure:"suite" toml:"suite"` // Path to the YAML query suite
}

// TruthConfig configures the truth store
type TruthConfig struct {
	SkipEntityValidation bool `mapstructure:"skip_entity_validation" toml:"skip_entity_validation"`
}

// RestoreConfig configures how ablated collections are restored
type RestoreConfig struct {
	BatchSize        int     `mapstructure:"batch_size" toml:"batch_size"`
	BatchesPerSecond float64 `mapstructure:"batches_per_second" toml:"batches_per_second"` // 0 = unpaced
}

// TermsConfig extends the vocabulary used to derive filters from query text.
// Keys are activity type names such as "music".
type TermsConfig struct {
	Vocabulary map[string]map[string][]string `mapstructure:"vocabulary" toml:"vocabulary,omitempty"` // type -> field -> values
	Indicators map[string][]string            `mapstructure:"indicators" toml:"indicators,omitempty"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
