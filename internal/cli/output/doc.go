// Package output renders echarlar-cli results.
//
//   - formatter.go: Formatter interface, factory, JSON and YAML (gopkg.in/yaml.v3)
//   - table.go: aligned text tables
package output
