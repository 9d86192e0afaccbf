package model

import (
	"fmt"
	"sync"
)

// TestLogger collects log lines for inspection in tests. Pipe workers log
// from several goroutines, so the collected lines are mutex-guarded.
type TestLogger struct {
	mu    sync.Mutex
	lines []string
}

var _ Logger = &TestLogger{}

func NewTestLogger() *TestLogger {
	return &TestLogger{
		lines: make([]string, 0),
	}
}

// Lines returns a copy of the collected log lines.
func (tl *TestLogger) Lines() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	out := make([]string, len(tl.lines))
	copy(out, tl.lines)
	return out
}

func (tl *TestLogger) append(msg string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.lines = append(tl.lines, msg)
}

func (tl *TestLogger) Debug(msg string) {
	tl.append(msg)
}

func (tl *TestLogger) Debugf(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}

func (tl *TestLogger) Info(msg string) {
	tl.append(msg)
}

func (tl *TestLogger) Infof(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}

func (tl *TestLogger) Warn(msg string) {
	tl.append(msg)
}

func (tl *TestLogger) Warnf(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}

func (tl *TestLogger) Error(msg string) {
	tl.append(msg)
}

func (tl *TestLogger) Errorf(format string, v ...any) {
	tl.append(fmt.Sprintf(format, v...))
}
