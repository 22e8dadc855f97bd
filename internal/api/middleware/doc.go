// Package middleware provides the gin middleware stack of the viewer API:
// request IDs, panic recovery, request logging, CORS and rate limiting.
//
// Example Usage:
//
//	router.Use(middleware.RequestID(), middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
