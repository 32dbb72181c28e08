package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	WS        WSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3001"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"52428800"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// MaxConnections caps concurrently accepted connections; 0 disables the cap.
	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"1024"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// StorageConfig holds the data file settings.
type StorageConfig struct {
	DataFile string `envconfig:"DATA_FILE" default:"data/bookmarks.json"`
	// SeedFile is adopted when DataFile is missing or empty.
	SeedFile string `envconfig:"SEED_FILE"`
	Watch    bool   `envconfig:"WATCH_DATA_FILE" default:"true"`
	// ReloadOnExternalChange adopts foreign writes instead of only logging them.
	ReloadOnExternalChange bool          `envconfig:"RELOAD_ON_EXTERNAL_CHANGE" default:"false"`
	WatchDebounce          time.Duration `envconfig:"WATCH_DEBOUNCE" default:"150ms"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	File        string `envconfig:"LOG_FILE"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// WSConfig holds websocket transport configuration.
type WSConfig struct {
	WriteTimeout    time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"5s"`
	PongWait        time.Duration `envconfig:"WS_PONG_WAIT" default:"60s"`
	MaxMessageBytes int64         `envconfig:"WS_MAX_MESSAGE_BYTES" default:"52428800"`
	ReplyBuffer     int           `envconfig:"WS_REPLY_BUFFER" default:"32"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if c.Storage.DataFile == "" {
		return fmt.Errorf("DATA_FILE must not be empty")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("MAX_CONNECTIONS must not be negative, got %d", c.Server.MaxConnections)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive RATE_LIMIT_RPS and RATE_LIMIT_BURST")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3001",
			Host:            "0.0.0.0",
			MaxBodyBytes:    50 << 20,
			ShutdownTimeout: 10 * time.Second,
			MaxConnections:  1024,
		},
		Storage: StorageConfig{
			DataFile:      "data/bookmarks.json",
			Watch:         true,
			WatchDebounce: 150 * time.Millisecond,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		WS: WSConfig{
			WriteTimeout:    5 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageBytes: 50 << 20,
			ReplyBuffer:     32,
		},
	}
}
