// Package logger provides structured logging for e-charlar.
//
// It wraps log/slog:
//
//   - logger.go: Logger interface, JSON and text handlers, dynamic level
//   - context.go: context propagation of loggers and request ids
//   - redact.go: secret redaction and user address masking
package logger
