package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - INGEST_CONFIG_PATH: config file location (default: ~/.config/ingest.toml)
//   - INGEST_HOME: base directory for ingest data (default: ~/.local/share/ingest)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path. INGEST_CONFIG_PATH wins;
// otherwise the first existing candidate under ~/.config is used, and
// ingest.toml when none exists yet.
func getConfigPath() (string, error) {
	if path := os.Getenv("INGEST_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".config")
	for _, name := range configCandidates {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return filepath.Join(dir, name), nil
		}
	}
	return filepath.Join(dir, configCandidates[0]), nil
}

// configCandidates are tried in order; the first is the default.
var configCandidates = []string{"ingest.toml", "ingest.yaml", "ingest.yml"}

// getBaseDir returns the base directory for ingest data, checking INGEST_HOME env var first,
// then falling back to the XDG default ~/.local/share/ingest.
func getBaseDir() (string, error) {
	if path := os.Getenv("INGEST_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ingest"), nil
}
