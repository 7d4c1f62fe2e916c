// Package httpserver serves the echarlar-server operational endpoints.
//
// The server exposes Prometheus metrics and a store health check. It is
// built on net/http with a small middleware chain:
//
//   - RequestID: assigns X-Request-ID and a request-scoped logger
//   - AccessLog: one log line per request
//   - Recover: turns handler panics into 500 responses
//   - RateLimit: per-client token buckets
package httpserver
