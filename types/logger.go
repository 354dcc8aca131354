package types

// Logger is the structured logging interface used across the harness.
//
// It is satisfied by *zap.SugaredLogger and by the slog adapter in
// internal/logging. keysAndValues are alternating key/value pairs.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message.
	Error(msg string, keysAndValues ...any)
}
