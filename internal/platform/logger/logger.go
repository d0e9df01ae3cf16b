package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	out      = log.New(color.Output, "", log.Ldate|log.Ltime)

	debugTag = color.New(color.FgCyan).SprintFunc()("[DEBUG]")
	infoTag  = color.New(color.FgYellow).SprintFunc()("[INFO]")
	warnTag  = color.New(color.FgMagenta).SprintFunc()("[WARN]")
	errorTag = color.New(color.FgRed, color.Bold).SprintFunc()("[ERROR]")
)

// ParseLevel maps LOG_LEVEL values; unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects log lines, mostly for tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = log.New(w, "", log.Ldate|log.Ltime)
}

func logf(l Level, tag, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if l < minLevel {
		return
	}
	out.Printf("%s %s", tag, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...interface{}) { logf(LevelDebug, debugTag, format, args...) }
func Info(format string, args ...interface{})  { logf(LevelInfo, infoTag, format, args...) }
func Warn(format string, args ...interface{})  { logf(LevelWarn, warnTag, format, args...) }
func Error(format string, args ...interface{}) { logf(LevelError, errorTag, format, args...) }

// Fatal logs at error level and exits.
func Fatal(format string, args ...interface{}) {
	mu.RLock()
	l := out
	mu.RUnlock()
	l.Fatalf("%s %s", errorTag, fmt.Sprintf(format, args...))
}
