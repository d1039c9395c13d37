package log

import (
	"context"
	"log/slog"
	"os"
)

var (
	level    slog.LevelVar
	fallback = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     &level,
	}))
)

func init() {
	level.Set(slog.LevelInfo)
}

type ctxKey struct{}

// Ctx returns the logger carried by ctx, or the process default if none
// was attached.
func Ctx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

// With returns a context carrying logger.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// SetDefaultLogLevel adjusts the level of the process default logger.
func SetDefaultLogLevel(l slog.Level) {
	level.Set(l)
}
