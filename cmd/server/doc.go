// Package main is the entry point for the document viewer server.
//
// The server resolves remote PDFs and images, renders PDF pages and keeps
// each viewer alive, all behind a REST and WebSocket API.
//
// Architecture:
//
//	Client → REST / WebSocket → Viewer → Classifier
//	                                   → Resolver (direct, then CORS proxies)
//	                                   → Render engine (pdfcpu)
//	                                   → Liveness monitor
//
// The server provides:
//   - /viewers REST API for loading and driving viewers
//   - Rendered pages as PNG
//   - WebSocket event stream per viewer
//   - /classify and /resolve diagnostics
//   - Prometheus metrics at /metrics
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -origin https://docs.example.com
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
