/*
Package monitoring provides Prometheus metrics for the bookmark server.

# Overview

Every Metrics value registers its collectors on a private registry, exposed
through Handler.

# Features

- HTTP request metrics (latency, throughput, size) by matched route
- Coordinator mutations by op and outcome, persistence latency and failures
- Forest size and revision gauges
- External writes to the data file
- WebSocket connections, messages and coalesced broadcasts

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "move")
	// ... apply and persist ...
	timer.Stop(monitoring.OutcomeApplied)
*/
package monitoring
