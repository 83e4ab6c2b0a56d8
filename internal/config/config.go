// Package config loads daemon configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// DataPath is the base directory for per-group databases and the
	// identity file.
	DataPath string `yaml:"data_path"`
	// ListenAddr is the local HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`
	// LogLevel is a slog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// InviteBaseURL is the base URL invite links are rendered under.
	InviteBaseURL string `yaml:"invite_base_url"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		DataPath:      "./data",
		ListenAddr:    "127.0.0.1:8406",
		LogLevel:      "info",
		InviteBaseURL: "https://groupsync.local",
	}
}

// Load reads configuration: defaults, then the YAML file at path if it
// exists, then environment overrides. An empty path skips the file step.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GROUPSYNC_DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv("GROUPSYNC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("GROUPSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GROUPSYNC_INVITE_BASE_URL"); v != "" {
		cfg.InviteBaseURL = v
	}
}
