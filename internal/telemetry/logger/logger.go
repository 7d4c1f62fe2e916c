package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Component names attached under the "component" key by Logger.Component.
const (
	ComponentStore  = "store"
	ComponentBackup = "backup"
	ComponentHTTP   = "http"
	ComponentTLS    = "tls"
	ComponentConfig = "config"
)

// DefaultService is the service name of DefaultConfig.
const DefaultService = "echarlar"

// Logger is the application logger interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger

	// Component returns a child logger tagged with the subsystem name.
	Component(name string) Logger

	// Slog returns the underlying *slog.Logger for components that take one.
	Slog() *slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output is the output writer (defaults to os.Stderr).
	Output io.Writer
	// AddSource adds source file information to log entries.
	AddSource bool
	// Service, when set, is attached to every entry as "service".
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "json",
		Output:  os.Stderr,
		Service: DefaultService,
	}
}

// levels maps accepted level names onto slog levels.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// level is shared by every logger built by New so SetLevel applies
// process wide.
var level = new(slog.LevelVar)

// New creates a logger with the given configuration.
func New(cfg Config) (Logger, error) {
	level.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactSensitive(a)
		},
	}

	var h slog.Handler
	if f := strings.ToLower(cfg.Format); f == "text" || f == "console" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	sl := slog.New(h)
	if cfg.Service != "" {
		sl = sl.With("service", cfg.Service)
	}
	return &ctxLogger{sl: sl, ctx: context.Background()}, nil
}

// SetLevel sets the level of every logger built by New.
// The config watcher calls it when log.level changes.
func SetLevel(name string) {
	level.Set(parseLevel(name))
}

// GetLevel returns the current log level name.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

// ValidLevel reports whether name is a known log level.
func ValidLevel(name string) bool {
	_, ok := levels[strings.ToLower(name)]
	return ok
}

// parseLevel falls back to info for unknown names.
func parseLevel(name string) slog.Level {
	if l, ok := levels[strings.ToLower(name)]; ok {
		return l
	}
	return slog.LevelInfo
}

// ctxLogger logs through sl with a fixed context, so handlers see the
// request context of the caller that built it.
type ctxLogger struct {
	sl  *slog.Logger
	ctx context.Context
}

func (l *ctxLogger) log(lvl slog.Level, msg string, args []any) {
	l.sl.Log(l.ctx, lvl, msg, args...)
}

func (l *ctxLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *ctxLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *ctxLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *ctxLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *ctxLogger) With(args ...any) Logger {
	return &ctxLogger{sl: l.sl.With(args...), ctx: l.ctx}
}

func (l *ctxLogger) WithContext(ctx context.Context) Logger {
	return &ctxLogger{sl: l.sl, ctx: ctx}
}

func (l *ctxLogger) Component(name string) Logger {
	return l.With("component", name)
}

func (l *ctxLogger) Slog() *slog.Logger {
	return l.sl
}

var defaultLogger atomic.Pointer[ctxLogger]

func init() {
	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*ctxLogger))
}

// SetDefault sets the default global logger. Loggers not built by New
// are ignored.
func SetDefault(l Logger) {
	if cl, ok := l.(*ctxLogger); ok {
		defaultLogger.Store(cl)
	}
}

// Default returns the default global logger.
func Default() Logger {
	return defaultLogger.Load()
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
