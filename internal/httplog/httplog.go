// Package httplog is the small leveled-logging wrapper shared by the
// transport and http3 packages. It exists because quic-go's own internal
// logger (utils.Logger) is unexported and cannot be imported; log/slog
// is the standard library's answer to the same problem and is what
// quic-go itself migrated to, so it is used here directly rather than
// hand-rolling a level/writer abstraction.
package httplog

import (
	"context"
	"fmt"
	"log/slog"
)

// Logger wraps an *slog.Logger with the handful of leveled helpers the
// connection and stream drivers call at their protocol-error and
// lifecycle decision points.
type Logger struct {
	base *slog.Logger
}

// New wraps base, or slog.Default() if base is nil.
func New(base *slog.Logger) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{base: base}
}

// Nop returns a Logger that discards everything, for tests that don't
// care about diagnostics.
func Nop() *Logger {
	return New(slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1})))
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(context.Background(), slog.LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.logf(context.Background(), slog.LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.logf(context.Background(), slog.LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.logf(context.Background(), slog.LevelError, format, args...) }

func (l *Logger) logf(ctx context.Context, level slog.Level, format string, args ...any) {
	if !l.base.Enabled(ctx, level) {
		return
	}
	l.base.Log(ctx, level, fmt.Sprintf(format, args...))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
