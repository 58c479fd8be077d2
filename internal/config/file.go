package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// FileEnvVar is the environment variable naming an optional YAML settings file.
const FileEnvVar = "SIPSA_CONFIG_FILE"

// File holds settings loaded from an optional YAML file. Keys are the same
// environment variable names the Load* functions read (e.g. SIPSA_BATCH_SIZE),
// values are their string form.
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type File struct {
	Settings map[string]string `yaml:"settings"`
}

// LoadFile loads settings from a YAML file and seeds them into the process
// environment for any key that is not already set. Real environment variables
// always win over file values.
//
// Behavior:
//   - Empty path or missing file is not an error - the file is optional
//   - Invalid YAML logs a warning and is ignored (graceful degradation)
func LoadFile(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing with environment only",
				slog.String("path", path))

			return nil
		}

		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file File

	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("Invalid YAML in config file, continuing with environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return nil
	}

	for key, value := range file.Settings {
		if _, present := os.LookupEnv(key); present {
			continue
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to apply config file setting %s: %w", key, err)
		}
	}

	return nil
}
