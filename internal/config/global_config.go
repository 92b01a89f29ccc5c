package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ProjectConfigFile is the per-project config file name.
const ProjectConfigFile = ".gate.yaml"

// UserConfigDir returns ~/.config/gate.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gate"), nil
}

// UserConfigPath returns the user-level config file path.
func UserConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ErrConfigExists is returned by WriteDefaultConfig when the file exists.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefaultConfig writes DefaultConfigYAML to path. An existing file is
// only replaced when force is set.
func WriteDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checking config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
