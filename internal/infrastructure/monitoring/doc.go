/*
Package monitoring provides Prometheus metrics for the viewer pipeline.

# Overview

Every collector owns a private registry so multiple viewers, servers and
tests can each create one. The HTTP server exposes it at /metrics.

# Metrics

- HTTP request count and latency (labelled by route pattern)
- Classifications by deciding strategy and resulting kind
- Network probes by kind (head, head_no_cors, range) and outcome
- Resolutions by route (passthrough, direct, custom_proxy, image, proxy, exhausted)
- Built-in proxy attempts by template and outcome (ok, failed, skipped)
- Document opens, page renders, render latency, open sessions
- Stalls and restarts from liveness monitors
- WebSocket connections and messages

All Record* methods are nil-safe so core packages can run without a
collector.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(metrics)))
*/
package monitoring
