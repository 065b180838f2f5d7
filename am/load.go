package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/ablation/errors"
)

// EnvPrefix prefixes environment overrides, e.g. ABLATION_EXPERIMENT_ROUNDS
const EnvPrefix = "ABLATION"

// ProjectConfigName is the file searched for from the working directory up
const ProjectConfigName = "am.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records, per flattened key, the file that last set it
// during the most recent merge.
var ConfigSources = map[string]SourceInfo{}

// Load reads the configuration using Viper: defaults, then system, user and
// project files, then ABLATION_* environment variables.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.WithDetail(errors.Configurationf("failed to unmarshal config"), err.Error())
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path. Environment
// variables still override file values.
func LoadFromFile(configPath string) (*Config, error) {
	v, _, err := ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// ReadFile prepares a Viper instance from defaults, configPath and the
// environment, returning the keys the file set.
func ReadFile(configPath string) (*viper.Viper, map[string]SourceInfo, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, errors.WithDetail(
			errors.Configurationf("failed to read config file %s", configPath), err.Error())
	}

	file := viper.New()
	file.SetConfigFile(configPath)
	file.SetConfigType("toml")
	sources := make(map[string]SourceInfo)
	if err := file.ReadInConfig(); err == nil {
		for _, key := range file.AllKeys() {
			sources[key] = SourceInfo{Source: SourceFile, Path: configPath}
		}
	}
	return v, sources, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)
	return v
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := newViper()

	// Manually merge configs in precedence order: system -> user -> project -> env vars
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			break
		}
		dir = parent
	}

	return ""
}

// configPaths lists candidate files, lowest precedence first
func configPaths() []SourceInfo {
	paths := []SourceInfo{
		{Source: SourceSystem, Path: "/etc/ablation/am.toml"},
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, SourceInfo{Source: SourceUser, Path: filepath.Join(homeDir, ".ablation", "am.toml")})
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		paths = append(paths, SourceInfo{Source: SourceProject, Path: projectConfig})
	}
	return paths
}

// mergeConfigFiles manually merges configuration files in the correct precedence order
// Precedence (lowest to highest): system < user < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	ConfigSources = map[string]SourceInfo{}

	for _, candidate := range configPaths() {
		if _, err := os.Stat(candidate.Path); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(candidate.Path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		// Merge into the config layer so environment variables keep precedence
		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range tempViper.AllKeys() {
			ConfigSources[key] = candidate
		}
	}
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.GetDatabasePath(), nil
}
