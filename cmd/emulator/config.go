package main

import (
	"fmt"
	"os"

	"github.com/nerrad567/tem-emulator/internal/infrastructure/config"
)

// loadConfig resolves the configuration path and loads it. An explicitly
// named file must exist; the default path falls back to built-in defaults.
//
// Returns:
//   - *config.Config: Validated configuration
//   - string: The path consulted, for logging
//   - error: If the file is unreadable or invalid
func loadConfig(flagPath string) (*config.Config, string, error) {
	path, explicit := resolveConfigPath(flagPath)

	var (
		cfg *config.Config
		err error
	)
	if explicit {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, path, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, path, nil
}

// resolveConfigPath returns the path to load and whether the user chose it.
func resolveConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}
