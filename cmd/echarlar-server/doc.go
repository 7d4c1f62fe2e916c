// Package main provides the entry point for echarlar-server.
//
// The server owns the e-charlar message store for the lifetime of the
// process:
//
//   - opens the configured store (badger or memory)
//   - serves Prometheus metrics and a health check when metrics.addr is set
//   - reloads log.level when the configuration file changes
//   - flushes and closes the store on SIGINT or SIGTERM
//
// Usage:
//
//	echarlar-server --config /etc/echarlar/config.yaml
package main
