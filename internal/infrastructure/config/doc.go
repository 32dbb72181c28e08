// Package config provides 12-factor configuration management for the bookmark server.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: listen address, body limit, shutdown timeout
//   - Storage: data file, seed file, external change handling
//   - Logging: log level, output format and optional rotated file
//   - RateLimit: Per-IP rate limiting configuration
//   - WS: websocket timeouts and buffers
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, MAX_BODY_BYTES, SHUTDOWN_TIMEOUT
//   - DATA_FILE, SEED_FILE, WATCH_DATA_FILE, RELOAD_ON_EXTERNAL_CHANGE, WATCH_DEBOUNCE
//   - LOG_LEVEL, LOG_DEV, LOG_FILE
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - WS_WRITE_TIMEOUT, WS_PONG_WAIT, WS_MAX_MESSAGE_BYTES, WS_REPLY_BUFFER
package config
