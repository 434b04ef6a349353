package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultPath = "./config.yaml"

// Load reads configuration from the file named by CONFIG_PATH (fallback
// "./config.yaml") and environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > env-default tags. An empty path falls back to
// "./config.yaml", which may be absent. A non-empty path must exist.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	file, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if file != "" {
		if err := cleanenv.ReadConfig(file, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	cfg.Path = file

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// resolvePath returns the file to read, or "" to read ENV only.
func resolvePath(path string) (string, error) {
	if path == "" {
		if _, err := os.Stat(defaultPath); errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return defaultPath, nil
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file %s: %w", path, err)
	}
	return path, nil
}
