package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/ablation/am.toml
	SourceUser        ConfigSource = "user"        // ~/.ablation/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceFile        ConfigSource = "file"        // explicit --config path
	SourceEnvironment ConfigSource = "environment" // ABLATION_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource // The type of config source (default, system, user, etc.)
	Path   string       // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // File path or env var name
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	Settings []SettingInfo `json:"settings"`
}

// GetConfigIntrospection reports every effective setting of the merged
// configuration with the source that set it.
func GetConfigIntrospection() *ConfigIntrospection {
	return Introspect(GetViper(), ConfigSources)
}

// Introspect reports the settings of v, attributing them via sources.
// Keys missing from sources are defaults unless an environment variable
// overrides them.
func Introspect(v *viper.Viper, sources map[string]SourceInfo) *ConfigIntrospection {
	introspection := &ConfigIntrospection{Settings: make([]SettingInfo, 0)}

	keys := v.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			sourceInfo = si
		}

		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		introspection.Settings = append(introspection.Settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
	return introspection
}

// CountBySource tallies settings per source
func (ci *ConfigIntrospection) CountBySource() map[ConfigSource]int {
	counts := make(map[ConfigSource]int)
	for _, setting := range ci.Settings {
		counts[setting.Source]++
	}
	return counts
}
