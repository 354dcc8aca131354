package logging

import (
	"context"
	"log/slog"

	"github.com/arloliu/cqlharness/types"
)

// SlogLogger adapts a *slog.Logger to types.Logger.
type SlogLogger struct {
	l *slog.Logger
}

var _ types.Logger = (*SlogLogger)(nil)

// NewSlogLogger wraps l. A nil l uses slog.Default().
//
// Parameters:
//   - l: The slog logger to write to
//
// Returns:
//   - *SlogLogger: The adapter
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}

	return &SlogLogger{l: l}
}

// Debug logs at slog.LevelDebug.
func (s *SlogLogger) Debug(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelDebug, msg, keysAndValues...)
}

// Info logs at slog.LevelInfo.
func (s *SlogLogger) Info(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelInfo, msg, keysAndValues...)
}

// Warn logs at slog.LevelWarn.
func (s *SlogLogger) Warn(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelWarn, msg, keysAndValues...)
}

// Error logs at slog.LevelError.
func (s *SlogLogger) Error(msg string, keysAndValues ...any) {
	s.l.Log(context.Background(), slog.LevelError, msg, keysAndValues...)
}
