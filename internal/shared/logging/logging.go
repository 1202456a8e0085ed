// Package logging provides the component logger used throughout the
// service. Log lines are plain text, not JSON, so they read well in a
// terminal and still parse back via parseTextLogLine in tests.
package logging

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

const category = "SERVICE"

// Logger is the minimal logging surface every component depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ComponentLogger writes text lines tagged with a fixed component name.
type ComponentLogger struct {
	component string
	logID     string
	writer    func(string)
}

// NewComponentLogger returns a Logger that tags every line with component.
func NewComponentLogger(component string) *ComponentLogger {
	return &ComponentLogger{component: component, writer: defaultWriter}
}

// WithLogID returns a copy of the logger that tags lines with logID.
func (l *ComponentLogger) WithLogID(logID string) *ComponentLogger {
	return &ComponentLogger{component: l.component, logID: logID, writer: l.writer}
}

func defaultWriter(line string) {
	fmt.Println(line)
}

func (l *ComponentLogger) log(level, format string, args ...any) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown.go", 0
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05")
	logIDTag := ""
	if l.logID != "" {
		logIDTag = fmt.Sprintf(" [log_id=%s]", l.logID)
	}
	out := fmt.Sprintf("%s [%s] [%s] [%s]%s %s:%d - %s",
		ts, level, category, l.component, logIDTag, filepath.Base(file), line, msg)
	l.writer(out)
}

func (l *ComponentLogger) Debug(format string, args ...any) { l.log("DEBUG", format, args...) }
func (l *ComponentLogger) Info(format string, args ...any)  { l.log("INFO", format, args...) }
func (l *ComponentLogger) Warn(format string, args ...any)  { l.log("WARN", format, args...) }
func (l *ComponentLogger) Error(format string, args ...any) { l.log("ERROR", format, args...) }

// nopLogger discards everything; used when a caller passes a nil Logger.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// OrNop returns logger unchanged, or a no-op Logger if logger is nil.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return nopLogger{}
	}
	return logger
}
