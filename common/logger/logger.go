// Package logger provides the unified logging surface for the assistant.
// It wraps a zap sugared logger behind package-level printf helpers so call
// sites stay terse.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	sugar *zap.SugaredLogger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	sugar = l.Sugar()
}

// SetLevel sets the minimum log level ("debug", "info", "warn", "error").
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return
	}
	level.SetLevel(l)
}

// Replace swaps the backing logger. Tests use it to silence output.
func Replace(l *zap.Logger) {
	mu.Lock()
	sugar = l.Sugar()
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debugf logs a debug message.
func Debugf(format string, args ...any) { get().Debugf(format, args...) }

// Infof logs an info message.
func Infof(format string, args ...any) { get().Infof(format, args...) }

// Warnf logs a warning message.
func Warnf(format string, args ...any) { get().Warnf(format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...any) { get().Errorf(format, args...) }

// Sync flushes buffered log entries.
func Sync() { _ = get().Sync() }
