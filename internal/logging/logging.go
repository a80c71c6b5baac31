package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// Options controls where log lines go and how much is written.
type Options struct {
	// File receives JSON lines. Empty disables the file sink.
	File string
	// Level is a zap level name ("debug", "info", ...).
	Level string
	// Console mirrors log lines to stderr in a human-readable form.
	Console bool
}

// InitLogger builds the global logger. The returned func flushes buffered entries.
func InitLogger(opts Options) (func(), error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: parse level: %w", err)
		}
		level = lvl
	}

	var cores []zapcore.Core

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: ensure log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}

	if opts.Console {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zapcore.DebugLevel))
	}

	if len(cores) == 0 {
		SetLogger(zap.NewNop())
		return func() {}, nil
	}

	l := zap.New(zapcore.NewTee(cores...))
	SetLogger(l)
	return func() { _ = l.Sync() }, nil
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Fallback to a no-op logger so library code and tests stay quiet
		logger = zap.NewNop()
	}
	return logger
}

// SetLogger sets the global logger instance
func SetLogger(l *zap.Logger) {
	logger = l
}

// DebugLog logs a debug message with printf-style formatting
func DebugLog(msg string, args ...interface{}) {
	GetLogger().Sugar().Debugf(msg, args...)
}

// InfoLog logs an info message with printf-style formatting
func InfoLog(msg string, args ...interface{}) {
	GetLogger().Sugar().Infof(msg, args...)
}

// WarnLog logs a warning message with printf-style formatting
func WarnLog(msg string, args ...interface{}) {
	GetLogger().Sugar().Warnf(msg, args...)
}

// ErrorLog logs an error message with printf-style formatting
func ErrorLog(msg string, args ...interface{}) {
	GetLogger().Sugar().Errorf(msg, args...)
}

// Debug logs a structured debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Info logs a structured info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Warn logs a structured warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs a structured error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}
