// Package config provides configuration management for the application
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full application configuration, read from the environment
type Config struct {
	Port        string `env:"PORT" envDefault:"4000"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text"`

	// AcceptVotesAfterReveal keeps accepting votes once a round is revealed.
	// When false such votes are rejected.
	AcceptVotesAfterReveal bool `env:"ACCEPT_VOTES_AFTER_REVEAL" envDefault:"false"`

	Reaper ReaperConfig `envPrefix:"REAPER_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
}

// ReaperConfig controls the stale room sweep
type ReaperConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
	// IdleAfter is how long a single-participant room may go without activity
	IdleAfter time.Duration `env:"IDLE_AFTER" envDefault:"12h"`
	// StoryIdleAfter is how long a single-participant room may go without a new story
	StoryIdleAfter time.Duration `env:"STORY_IDLE_AFTER" envDefault:"24h"`
}

// RedisConfig holds Redis/Valkey configuration
type RedisConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"false"`
	// URI is prioritized if provided, otherwise individual connection parameters are used
	URI       string `env:"URI"`
	Host      string `env:"HOST" envDefault:"localhost"`
	Port      string `env:"PORT" envDefault:"6379"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"poker:"`
	// RoomTTL is refreshed on every write; 0 means no expiration
	RoomTTL time.Duration `env:"ROOM_TTL" envDefault:"48h"`
	// Timeout bounds dialing, reads and writes
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
	// MaxRetries bounds optimistic transaction retries on a contended room
	MaxRetries int `env:"MAX_RETRIES" envDefault:"10"`
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Reaper.Enabled && c.Reaper.Interval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL must be positive, got %s", c.Reaper.Interval)
	}
	if c.Redis.MaxRetries < 1 {
		return fmt.Errorf("REDIS_MAX_RETRIES must be at least 1, got %d", c.Redis.MaxRetries)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Address returns host:port for the Redis connection
func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
