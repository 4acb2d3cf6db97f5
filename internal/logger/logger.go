// Package logger provides process-wide leveled logging for derivex.
// Warnings and errors are always written. When verbose mode is enabled via
// the --verbose flag, debug and info messages are written too, which shows
// each batch as it moves through the pipeline.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = zap.NewAtomicLevelAt(zap.WarnLevel)
	base    *zap.SugaredLogger
)

func init() {
	base = build(output)
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
		EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString("[" + l.CapitalString() + "]")
		},
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func build(w io.Writer) *zap.SugaredLogger {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core).Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.WarnLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = build(w)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	current().Debugf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	current().Infof(format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	current().Warnf(format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	current().Errorf(format, args...)
}

// Logger is a child logger carrying structured context.
type Logger struct {
	s *zap.SugaredLogger
}

// With returns a logger that appends the given key-value pairs to every message.
func With(keysAndValues ...any) *Logger {
	return &Logger{s: current().With(keysAndValues...)}
}

// With returns a child of l with additional key-value pairs.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...any) { l.s.Errorf(format, args...) }

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}
