package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/DeRuina/timberjack"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel parses a string into a LogLevel.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// StructuredLogger implements Logger on top of zap, keeping the
// original field-based call shape while getting zap's allocation-light
// encoders and, for file output, timberjack's size-based rotation.
type StructuredLogger struct {
	level   LogLevel
	zl      *zap.Logger
	atom    zap.AtomicLevel
	ws      zapcore.WriteSyncer
	closers []func() error
}

// NewStructuredLogger builds a logger writing through ws at level,
// rendered by zap's console encoder as one human-readable line per
// entry: "ts: LEVEL: msg" followed, when fields are given, by ": " and
// the fields as a JSON object.
func NewStructuredLogger(level LogLevel, ws zapcore.WriteSyncer) *StructuredLogger {
	atom := zap.NewAtomicLevelAt(level.zapLevel())
	enc := zapcore.NewConsoleEncoder(encoderConfig())
	core := zapcore.NewCore(enc, ws, atom)
	return &StructuredLogger{level: level, zl: zap.New(core), atom: atom, ws: ws}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format("2006-01-02 15:04:05.000")) },
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		ConsoleSeparator: ": ",
	}
}

// NewFileLogger creates a logger that writes to filename, rotated by
// timberjack (the lumberjack-compatible roller caddy depends on) once
// it passes 100MB, keeping 5 backups for up to 28 days.
func NewFileLogger(level LogLevel, filename string) (*StructuredLogger, error) {
	roller := &timberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
	}
	// timberjack opens the file lazily on first Write; force it now so
	// callers passing an unwritable path get an error immediately
	// instead of on the first log call.
	if _, err := roller.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	l := NewStructuredLogger(level, zapcore.AddSync(roller))
	l.closers = append(l.closers, roller.Close)
	return l, nil
}

// NewConsoleLogger creates a logger that writes to stdout.
func NewConsoleLogger(level LogLevel) *StructuredLogger {
	return NewStructuredLogger(level, zapcore.Lock(os.Stdout))
}

// NewMultiLogger creates a logger that writes to multiple outputs.
func NewMultiLogger(level LogLevel, writers ...zapcore.WriteSyncer) *StructuredLogger {
	return NewStructuredLogger(level, zapcore.NewMultiWriteSyncer(writers...))
}

// Debug logs a debug message with optional fields.
func (l *StructuredLogger) Debug(msg string, fields ...Field) { l.zl.Debug(msg, toZap(fields)...) }

// Info logs an info message with optional fields.
func (l *StructuredLogger) Info(msg string, fields ...Field) { l.zl.Info(msg, toZap(fields)...) }

// Warn logs a warning message with optional fields.
func (l *StructuredLogger) Warn(msg string, fields ...Field) { l.zl.Warn(msg, toZap(fields)...) }

// Error logs an error message with optional fields.
func (l *StructuredLogger) Error(msg string, fields ...Field) { l.zl.Error(msg, toZap(fields)...) }

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// SetLevel changes the logging level.
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.level = level
	l.atom.SetLevel(level.zapLevel())
}

// GetLevel returns the current logging level.
func (l *StructuredLogger) GetLevel() LogLevel {
	return l.level
}

// Close flushes and releases any file handles the logger opened.
func (l *StructuredLogger) Close() error {
	_ = l.zl.Sync()
	var firstErr error
	for _, c := range l.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Helper functions for creating common fields.

// StringField creates a string field.
func StringField(key, value string) Field { return Field{Key: key, Value: value} }

// IntField creates an integer field.
func IntField(key string, value int) Field { return Field{Key: key, Value: value} }

// Uint64Field creates a uint64 field, used for nc and timestamp values.
func Uint64Field(key string, value uint64) Field { return Field{Key: key, Value: value} }

// DurationField creates a duration field.
func DurationField(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// ErrorField creates an error field.
func ErrorField(err error) Field { return Field{Key: "error", Value: err.Error()} }

// NonceField creates a field carrying a nonce value for audit logging
// of STALE/WRONG outcomes.
func NonceField(nonce string) Field { return Field{Key: "nonce", Value: nonce} }

// RealmField creates a realm field.
func RealmField(realm string) Field { return Field{Key: "realm", Value: realm} }

// AddressField creates an address field.
func AddressField(key, address string) Field { return Field{Key: key, Value: address} }

// UserField creates a user field.
func UserField(user string) Field { return Field{Key: "user", Value: user} }

// StatusField creates a field carrying a verifier status string.
func StatusField(status string) Field { return Field{Key: "status", Value: status} }

// OccupancyField renders a nonce table's used/capacity slot count with
// thousands separators, for the periodic DEBUG-level table-stats sweep.
func OccupancyField(used, capacity int) Field {
	return Field{Key: "occupancy", Value: fmt.Sprintf("%s/%s", humanize.Comma(int64(used)), humanize.Comma(int64(capacity)))}
}

// LoggerConfig represents logger configuration.
type LoggerConfig struct {
	Level string
	File  string
}

// NewLoggerFromConfig creates a logger based on configuration.
func NewLoggerFromConfig(config LoggerConfig) (Logger, error) {
	level, err := ParseLogLevel(config.Level)
	if err != nil {
		return nil, err
	}

	if config.File == "" || config.File == "stdout" {
		return NewConsoleLogger(level), nil
	}

	fileLogger, err := NewFileLogger(level, config.File)
	if err != nil {
		return nil, err
	}

	// At debug, info or warn level, everything logged at or above that
	// level is also written to stdout; at error level the file is the
	// only output.
	if level <= WarnLevel {
		multi := NewMultiLogger(level, fileLogger.ws, zapcore.Lock(os.Stdout))
		multi.closers = fileLogger.closers
		return multi, nil
	}

	return fileLogger, nil
}
