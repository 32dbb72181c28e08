// Package logging provides structured logging using uber/zap.
//
// Two output modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for humans
//
// Setting Config.File mirrors every entry into a size-rotated file
// (lumberjack).
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "3001"))
//	logger.Error("Failed to persist", zap.Error(err))
package logging
