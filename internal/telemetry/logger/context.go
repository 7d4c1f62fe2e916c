package logger

import "context"

type (
	loggerKey    struct{}
	requestIDKey struct{}
)

// WithLogger stores l in ctx. When ctx already carries a request id the
// stored logger is tagged with it.
func WithLogger(ctx context.Context, l Logger) context.Context {
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With("request_id", id)
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID stores the request id in ctx. A logger already in ctx is
// replaced by a child carrying the id, so every later FromContext logs it.
func WithRequestID(ctx context.Context, id string) context.Context {
	l, ok := ctx.Value(loggerKey{}).(Logger)
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	if ok {
		ctx = WithLogger(ctx, l)
	}
	return ctx
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// L returns the context's logger bound to ctx.
func L(ctx context.Context) Logger {
	return FromContext(ctx).WithContext(ctx)
}
