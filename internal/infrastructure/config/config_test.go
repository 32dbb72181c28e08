package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "HOST", "MAX_BODY_BYTES", "SHUTDOWN_TIMEOUT", "MAX_CONNECTIONS",
	"DATA_FILE", "SEED_FILE", "WATCH_DATA_FILE", "RELOAD_ON_EXTERNAL_CHANGE", "WATCH_DEBOUNCE",
	"LOG_LEVEL", "LOG_DEV", "LOG_FILE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED",
	"WS_WRITE_TIMEOUT", "WS_PONG_WAIT", "WS_MAX_MESSAGE_BYTES", "WS_REPLY_BUFFER",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:3001", cfg.Server.Addr())
	assert.Equal(t, int64(50<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 1024, cfg.Server.MaxConnections)

	// Storage config
	assert.Equal(t, "data/bookmarks.json", cfg.Storage.DataFile)
	assert.Empty(t, cfg.Storage.SeedFile)
	assert.True(t, cfg.Storage.Watch)
	assert.False(t, cfg.Storage.ReloadOnExternalChange)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.Equal(t, 5*time.Second, cfg.WS.WriteTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"HOST":                      "127.0.0.1",
		"DATA_FILE":                 "/var/lib/bookmarks/data.json",
		"SEED_FILE":                 "seed.yaml",
		"WATCH_DATA_FILE":           "false",
		"RELOAD_ON_EXTERNAL_CHANGE": "true",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"LOG_FILE":                  "/tmp/bookmarks.log",
		"RATE_LIMIT_RPS":            "500",
		"RATE_LIMIT_BURST":          "1000",
		"RATE_LIMIT_ENABLED":        "false",
		"WS_PONG_WAIT":              "30s",
		"MAX_BODY_BYTES":            "1024",
	}
	clearEnv(t)
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
	assert.Equal(t, int64(1024), cfg.Server.MaxBodyBytes)

	assert.Equal(t, "/var/lib/bookmarks/data.json", cfg.Storage.DataFile)
	assert.Equal(t, "seed.yaml", cfg.Storage.SeedFile)
	assert.False(t, cfg.Storage.Watch)
	assert.True(t, cfg.Storage.ReloadOnExternalChange)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "/tmp/bookmarks.log", cfg.Logging.File)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, 30*time.Second, cfg.WS.PongWait)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable pong wait", "WS_PONG_WAIT", "soon"},
		{"zero body limit", "MAX_BODY_BYTES", "0"},
		{"zero rate", "RATE_LIMIT_RPS", "0"},
		{"negative connection cap", "MAX_CONNECTIONS", "-1"},
		{"not a bool", "WATCH_DATA_FILE", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			cfg := LoadOrDefault()
			assert.Equal(t, Default(), cfg)
		})
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantAddr string
	}{
		{name: "default values", wantAddr: "0.0.0.0:3001"},
		{name: "custom port", port: "9000", wantAddr: "0.0.0.0:9000"},
		{name: "custom host", host: "localhost", wantAddr: "localhost:3001"},
		{name: "ipv6 host", host: "::1", port: "8080", wantAddr: "[::1]:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()
			assert.Equal(t, tt.wantAddr, cfg.Server.Addr())
		})
	}
}
