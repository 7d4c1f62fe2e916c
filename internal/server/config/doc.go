// Package config defines the echarlar-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation and the mapping onto storage options
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and ECHARLAR_ environment variables.
package config
