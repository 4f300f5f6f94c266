// ABOUTME: Structured logging with verbosity control and level-based output
// ABOUTME: Printf-style helpers over a zap core so call sites stay terse

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
	level   = zap.NewAtomicLevelAt(zap.InfoLevel)
	output  io.Writer = os.Stderr
	jsonOut = false
	base    *zap.Logger
	sugar   *zap.SugaredLogger
)

func init() {
	rebuild()
}

// rebuild must be called with mu held for writing (or during init).
func rebuild() {
	var enc zapcore.Encoder
	if jsonOut {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
			TimeKey:          "ts",
			LevelKey:         "level",
			NameKey:          "logger",
			MessageKey:       "msg",
			LineEnding:       zapcore.DefaultLineEnding,
			EncodeTime:       zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05"),
			EncodeLevel:      bracketLevelEncoder,
			EncodeName:       zapcore.FullNameEncoder,
			EncodeDuration:   zapcore.StringDurationEncoder,
			ConsoleSeparator: " ",
		})
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), level)
	base = zap.New(core)
	sugar = base.Sugar()
}

func bracketLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// SetVerbose enables or disables verbose (DEBUG) logging
func SetVerbose(v bool) {
	if v {
		level.SetLevel(zap.DebugLevel)
	} else {
		level.SetLevel(zap.InfoLevel)
	}
}

// IsVerbose returns current verbose setting
func IsVerbose() bool {
	return level.Enabled(zap.DebugLevel)
}

// SetOutput sets the output destination for logs
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	output = w
	rebuild()
}

// SetJSON switches between the console encoder and zap's production JSON encoder.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonOut = enabled
	rebuild()
}

// Named returns a structured logger scoped to a component.
func Named(name string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar.Named(name)
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Debug logs at DEBUG level (only shown when verbose)
func Debug(format string, args ...interface{}) {
	if !IsVerbose() {
		return
	}
	current().Debug(fmt.Sprintf(format, args...))
}

// Info logs at INFO level (always shown)
func Info(format string, args ...interface{}) {
	current().Info(fmt.Sprintf(format, args...))
}

// Warn logs at WARN level (always shown)
func Warn(format string, args ...interface{}) {
	current().Warn(fmt.Sprintf(format, args...))
}

// Error logs at ERROR level (always shown)
func Error(format string, args ...interface{}) {
	current().Error(fmt.Sprintf(format, args...))
}
