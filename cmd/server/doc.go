// Package main is the entry point for the bookmark sync server.
//
// The server keeps one bookmark forest in a JSON file and serves it to
// browsers and tools:
//
//	Browser tabs ⇄ WebSocket /ws ⇄ Coordinator → data/bookmarks.json
//	CLI, scripts → REST /bookmarks ↗
//
// Every accepted change is written to disk before it is broadcast, so a
// client never sees a forest that was not persisted.
//
// Configuration:
//   - Environment variables (PORT, DATA_FILE, LOG_LEVEL, ...)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Defaults: 0.0.0.0:3001, data/bookmarks.json
//	./server
//
//	# Seed an empty install and adopt hand edits of the file
//	./server -seed bookmarks.yaml -reload
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
