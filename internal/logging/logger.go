// Package logging provides structured, leveled logging for aesdlogd.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the available log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level   LogLevel
	Format  string // "json" or "text" (console encoder); default "text"
	Output  io.Writer
	Sync    bool // flush after every log call; useful for tests asserting on Output
	NoColor bool
}

// DefaultConfig returns a sensible default configuration: text encoding to
// stderr at info level.
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger wraps a zap.SugaredLogger with the key=value call shape the rest
// of the codebase uses.
type Logger struct {
	sugar *zap.SugaredLogger
	sync  bool
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// NewLogger creates a new logger from config. A nil config uses DefaultConfig.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if !config.NoColor && config.Format != "json" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(output), config.Level.zapLevel())
	zl := zap.New(core)

	return &Logger{sugar: zl.Sugar(), sync: config.Sync}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

func (l *Logger) maybeSync() {
	if l.sync {
		_ = l.sugar.Sync()
	}
}

func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
	l.maybeSync()
}

func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
	l.maybeSync()
}

func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
	l.maybeSync()
}

func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
	l.maybeSync()
}

// Printf-style logging, kept for call sites that format their own message.
func (l *Logger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
	l.maybeSync()
}

func (l *Logger) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
	l.maybeSync()
}

func (l *Logger) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
	l.maybeSync()
}

func (l *Logger) Errorf(format string, args ...any) {
	l.sugar.Errorf(format, args...)
	l.maybeSync()
}

// Printf is kept for compatibility with call sites expecting a plain
// Printf-style logger (e.g. passed as a library log sink).
func (l *Logger) Printf(format string, args ...any) {
	l.Infof(format, args...)
}

// with returns a derived Logger carrying additional structured fields.
func (l *Logger) with(args ...any) *Logger {
	return &Logger{sugar: l.sugar.With(args...), sync: l.sync}
}

// WithConn scopes the logger to a connection id.
func (l *Logger) WithConn(connID int64) *Logger {
	return l.with("conn_id", connID)
}

// WithPeer scopes the logger to a connection's remote address.
func (l *Logger) WithPeer(addr string) *Logger {
	return l.with("peer", addr)
}

// WithCommand scopes the logger to a ring-buffer command index and an
// operation name.
func (l *Logger) WithCommand(index uint32, op string) *Logger {
	return l.with("cmd_index", index, "op", op)
}

// WithError attaches an error field to subsequent log calls.
func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err)
}

// Global convenience functions operating on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
