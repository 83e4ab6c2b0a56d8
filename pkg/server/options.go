package server

import (
	"log/slog"

	"github.com/relves/groupsync/pkg/group"
)

// Config holds server configuration.
type Config struct {
	Service *group.Service
	Logger  *slog.Logger
}

// Option configures the server.
type Option func(*Config)

// WithService sets the group service the handlers delegate to.
func WithService(s *group.Service) Option {
	return func(c *Config) {
		c.Service = s
	}
}

// WithLogger sets the request logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func applyOptions(opts ...Option) *Config {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
