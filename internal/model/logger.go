// Package model contains common data models.
package model

import "fmt"

// Logger is the generic logger definition. It is compatible with
// github.com/apex/log, so an apex logger can be passed anywhere a
// [Logger] is expected.
type Logger interface {
	// Debug emits a debug message.
	Debug(msg string)

	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Info emits an informational message.
	Info(msg string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Warn emits a warning message.
	Warn(msg string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Error emits an error message.
	Error(msg string)

	// Errorf formats and emits an error message.
	Errorf(format string, v ...any)
}

// Log levels passed to a [LogCallback]. The numbering matches the levels
// used by the mobile bindings, where smaller is more severe.
const (
	// LogLevelError is the level for error messages.
	LogLevelError = 0

	// LogLevelWarn is the level for warning messages.
	LogLevelWarn = 1

	// LogLevelInfo is the level for informational messages.
	LogLevelInfo = 2

	// LogLevelDebug is the level for debug messages.
	LogLevelDebug = 3
)

// LogCallback is a function receiving log lines from background workers.
// The callback is invoked concurrently from several goroutines, so it must
// be safe for concurrent use and it must not block.
type LogCallback func(level int, msg string)

// NewCallbackLogger wraps a [LogCallback] into a [Logger]. A nil callback
// yields a logger that discards everything.
func NewCallbackLogger(cb LogCallback) Logger {
	return &callbackLogger{cb: cb}
}

// callbackLogger adapts a [LogCallback] to the [Logger] interface.
type callbackLogger struct {
	cb LogCallback
}

var _ Logger = &callbackLogger{}

func (cl *callbackLogger) emit(level int, msg string) {
	if cl.cb != nil {
		cl.cb(level, msg)
	}
}

func (cl *callbackLogger) Debug(msg string) {
	cl.emit(LogLevelDebug, msg)
}

func (cl *callbackLogger) Debugf(format string, v ...any) {
	cl.emit(LogLevelDebug, fmt.Sprintf(format, v...))
}

func (cl *callbackLogger) Info(msg string) {
	cl.emit(LogLevelInfo, msg)
}

func (cl *callbackLogger) Infof(format string, v ...any) {
	cl.emit(LogLevelInfo, fmt.Sprintf(format, v...))
}

func (cl *callbackLogger) Warn(msg string) {
	cl.emit(LogLevelWarn, msg)
}

func (cl *callbackLogger) Warnf(format string, v ...any) {
	cl.emit(LogLevelWarn, fmt.Sprintf(format, v...))
}

func (cl *callbackLogger) Error(msg string) {
	cl.emit(LogLevelError, msg)
}

func (cl *callbackLogger) Errorf(format string, v ...any) {
	cl.emit(LogLevelError, fmt.Sprintf(format, v...))
}
