// Package logger provides a thin wrapper around zap with typed field
// constructors so call sites don't import zap directly.
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains logger configuration
type Config struct {
	Level  string // "debug", "info", "warn", or "error"
	Format string // "json" or "console"
}

// Logger wraps a zap logger
type Logger struct {
	zap *zap.Logger
}

// Field is a structured log field
type Field = zap.Field

// New creates a new logger from the given configuration
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info", "":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	}
	zapCfg.DisableStacktrace = true

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{zap: z}, nil
}

// NewNop returns a logger that discards all output. Intended for tests.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Named returns a logger with the given name segment appended
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// With returns a logger with the given fields attached to every entry
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Debug logs a message at debug level
func (l *Logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fields...) }

// Info logs a message at info level
func (l *Logger) Info(msg string, fields ...Field) { l.zap.Info(msg, fields...) }

// Warn logs a message at warn level
func (l *Logger) Warn(msg string, fields ...Field) { l.zap.Warn(msg, fields...) }

// Error logs a message at error level
func (l *Logger) Error(msg string, fields ...Field) { l.zap.Error(msg, fields...) }

// Sync flushes any buffered log entries
func (l *Logger) Sync() error { return l.zap.Sync() }

// Field constructors

func String(key, val string) Field             { return zap.String(key, val) }
func Int(key string, val int) Field            { return zap.Int(key, val) }
func Int64(key string, val int64) Field        { return zap.Int64(key, val) }
func Uint64(key string, val uint64) Field      { return zap.Uint64(key, val) }
func Float64(key string, val float64) Field    { return zap.Float64(key, val) }
func Bool(key string, val bool) Field          { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) Field     { return zap.Time(key, val) }
func Any(key string, val any) Field            { return zap.Any(key, val) }
func Error(err error) Field                    { return zap.Error(err) }
