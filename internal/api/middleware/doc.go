// Package middleware provides the HTTP middleware stack of the bookmark
// server.
//
// Middleware stack includes:
//   - RequestID: X-Request-ID propagation
//   - Logger: one zap line per request
//   - Recovery: panic recovery with a JSON 500
//   - CORS: cross-origin access for the bookmark UI
//   - RateLimit: per-IP token bucket with idle cleanup
//   - BodyLimit: request body cap
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
