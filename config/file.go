package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FilePath returns the config file named by CONFIG_FILE, or "" when unset.
func FilePath() string {
	return envString("CONFIG_FILE", "")
}

// LoadFile loads the environment config and overlays the YAML file at path.
// Keys missing from the file keep their environment or default value; bot
// tokens are only ever read from the environment. An empty path returns the
// environment config.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.PredictorAPI.BaseURL = strings.TrimRight(cfg.PredictorAPI.BaseURL, "/")

	return cfg, nil
}
