// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Each pipeline component logs through a child logger obtained with
// Component, so every entry carries a "component" field (classifier,
// resolver, render, liveness, viewer, api).
//
// Probe and proxy failures are recovered locally and logged at Debug.
// Render and teardown failures are logged at Warn and never propagated
// out of cleanup paths.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	res := resolver.New(cfg, client, resolver.WithLogger(logger.Component("resolver")))
//	logger.Info("Viewer opened", zap.String("url", u))
package logging
