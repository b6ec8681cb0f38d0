// Package logger is the process-wide leveled logger.
//
// Call sites use printf-style helpers and prefix messages with a bracketed
// component tag, e.g. logger.Debugf("[preview %s] scheduled in %dms", id, ms).
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is the verbosity threshold. Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (actor inputs, effects).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case LevelTrace:
		return logrus.TraceLevel
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

var (
	mu  sync.RWMutex
	std = newStd()
)

func newStd() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

// SetLevel sets the global log level threshold.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	std.SetLevel(level.logrus())
}

// SetFormat selects "text" (default) or "json" output.
func SetFormat(format string) error {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Enabled reports whether a level would be emitted.
func Enabled(level Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return std.IsLevelEnabled(level.logrus())
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(logrus.TraceLevel, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(logrus.DebugLevel, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(logrus.InfoLevel, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(logrus.WarnLevel, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(logrus.ErrorLevel, format, args...) }

func logf(level logrus.Level, format string, args ...any) {
	mu.RLock()
	l := std
	mu.RUnlock()
	l.Logf(level, format, args...)
}
