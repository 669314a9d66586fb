// Package config provides configuration for the runview server.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// State store
	StateDir     string        `env:"STATE_DIR" envDefault:"./state"`
	StateLive    bool          `env:"STATE_LIVE" envDefault:"true"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	// Archive; empty disables it.
	DatabaseURL string `env:"DATABASE_URL"`

	// Snapshot and stream bounds
	SnapshotEventLimit       int `env:"SNAPSHOT_EVENT_LIMIT" envDefault:"220"`
	StreamMaxQueue           int `env:"STREAM_MAX_QUEUE" envDefault:"1200"`
	StreamMaxSeen            int `env:"STREAM_MAX_SEEN" envDefault:"4000"`
	StreamMaxEmitPerSnapshot int `env:"STREAM_MAX_EMIT_PER_SNAPSHOT" envDefault:"180"`

	// WebSocket settings
	WSPingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSWriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	WSMaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	WSSendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"2048"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", cfg.PollInterval)
	}
	if cfg.WSReadTimeout <= cfg.WSPingInterval {
		return nil, fmt.Errorf("WS_READ_TIMEOUT (%s) must exceed WS_PING_INTERVAL (%s)", cfg.WSReadTimeout, cfg.WSPingInterval)
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
