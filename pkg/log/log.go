// Package log threads a slog.Logger through context so every layer of a run
// can tag its records without passing a logger argument around.
package log

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// Ctx returns the logger carried by ctx, falling back to slog.Default() so
// records still land on whatever handler the process configured.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// With returns a context carrying the given logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// WithAttrs returns a context whose logger attaches the given attributes to
// every record. Used to tag all logs of one optimization run or one sweep
// candidate.
func WithAttrs(ctx context.Context, attrs ...any) context.Context {
	return With(ctx, Ctx(ctx).With(attrs...))
}
