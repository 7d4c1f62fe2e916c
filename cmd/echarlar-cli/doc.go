// Package main provides the entry point for echarlar-cli.
//
// The CLI works directly against a store directory for:
//
//   - user management (create, get)
//   - room management (create, get, join)
//   - posting messages and paging through room history
//
// Usage:
//
//	echarlar-cli --data-dir ./data user create alice@example.org
//	echarlar-cli -o json message history ROOM_ID --limit 50 --all
//
// The badger engine holds an exclusive lock on the directory, so the CLI
// cannot share a data directory with a running echarlar-server.
package main
