package am

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/ablation/errors"
	"github.com/teranos/ablation/logger"
)

const defaultHeader = `# Ablation harness configuration.
# Every setting can be overridden with ABLATION_<SECTION>_<KEY>,
# e.g. ABLATION_EXPERIMENT_ROUNDS=5.
#
# Relationship overrides map "primary:related" activity types to reference
# fields in priority order, e.g.
#   [relationships]
#   "task:collaboration" = ["created_in", "has_tasks"]

`

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail config save)
		logger.Warnw("Failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// Marshal renders c as TOML.
func Marshal(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to configPath. An existing
// file is only replaced with force, after rotating backups.
func WriteDefault(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.WithHint(
			errors.Configurationf("config file %s already exists", configPath),
			"use --force to overwrite; the previous file is kept as .back1")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", configPath)
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, append([]byte(defaultHeader), data...), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write config %s", configPath)
	}
	return nil
}
