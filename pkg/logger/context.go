package logger

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// With returns a new context that includes a logger with fields.
func With(ctx context.Context, fields ...any) context.Context {
	l := From(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey{}, l)
}

// From returns the logger stored in context, or default if missing.
func From(ctx context.Context) *slog.Logger {
	return Ctx(ctx, LoggerWrapper())
}

// Ctx prefers the request-scoped logger, so trace and user fields follow the
// call into services that were built with their own logger.
func Ctx(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx == nil {
		return fallback
	}
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
