package types

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogger is the default logger implementation, backed by zap.
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

// NewDefaultLogger creates a new default logger. When debug is false, debug
// level messages are suppressed.
func NewDefaultLogger(debug bool) *DefaultLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &DefaultLogger{sugar: logger.Named("pulsekit").Sugar()}
}

// NewZapLogger wraps an existing zap logger in the SDK's Logger interface.
func NewZapLogger(logger *zap.Logger) *DefaultLogger {
	return &DefaultLogger{sugar: logger.Sugar()}
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message.
func (l *DefaultLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// NullLogger is a logger that discards all messages.
type NullLogger struct{}

// Debug does nothing.
func (l *NullLogger) Debug(msg string, keysAndValues ...any) {}

// Info does nothing.
func (l *NullLogger) Info(msg string, keysAndValues ...any) {}

// Warn does nothing.
func (l *NullLogger) Warn(msg string, keysAndValues ...any) {}

// Error does nothing.
func (l *NullLogger) Error(msg string, keysAndValues ...any) {}
