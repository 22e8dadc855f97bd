// Package config provides 12-factor configuration management for the
// document viewer service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings and the origin the viewer is hosted at
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - Resolver: Ordered CORS proxy templates and probe timeouts
//   - Classifier: Header probe and signature sniff timeouts
//   - Render: Document open timeout, device pixel ratio, size cap
//   - Liveness: Stall threshold and check interval
//   - Viewer: Zoom bounds, default view mode, auto-retry delay
//
// The proxy list is a deployment detail. It is read from RESOLVER_PROXIES
// (comma separated) or from a YAML file named by RESOLVER_PROXY_FILE:
//
//	proxies:
//	  - https://relay.internal/fetch?url=
//	  - https://corsproxy.io/?
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Serving viewers for %s\n", cfg.Server.Origin)
package config
