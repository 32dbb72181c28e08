// Package server wires the bookmark server together.
//
// This package orchestrates all components:
//   - JSON file storage and the data file watcher
//   - The sync coordinator (single writer of the forest)
//   - HTTP routing with Gin, mirrored under /api
//   - The WebSocket hub on /ws
//   - Middleware stack (request id, recovery, logging, metrics, CORS, rate limiting, body limit)
//   - Prometheus exposition on /metrics
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Build the store, coordinator, hub and router
//  3. Load the data file (or adopt the seed) and start the coordinator
//  4. Serve HTTP and WebSocket traffic, watch the data file
//  5. On cancellation drain HTTP, then stop the coordinator
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
