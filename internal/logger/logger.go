// internal/logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level is a log severity
type Level int

// Log levels
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

var (
	level    = LevelInfo
	mu       sync.Mutex
	debugLog = log.New(os.Stderr, "[DEBUG] ", log.LstdFlags)
	infoLog  = log.New(os.Stderr, "[INFO] ", log.LstdFlags)
	warnLog  = log.New(os.Stderr, "[WARN] ", log.LstdFlags)
	errorLog = log.New(os.Stderr, "[ERROR] ", log.LstdFlags)
)

// Init initializes the logger.
// All levels write to stderr so that stdout carries only the tag listing.
func Init() {
	SetOutput(os.Stderr)
	SetLevel("info")
}

// SetOutput sets the output for all loggers
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	debugLog.SetOutput(w)
	infoLog.SetOutput(w)
	warnLog.SetOutput(w)
	errorLog.SetOutput(w)
}

// ParseLevel maps a level name to a Level; unknown names map to info
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// SetLevel sets the log level
func SetLevel(levelStr string) {
	mu.Lock()
	defer mu.Unlock()

	level = ParseLevel(levelStr)
}

// CurrentLevel returns the active log level
func CurrentLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

func enabled(l Level) bool {
	return CurrentLevel() <= l
}

// Debug logs a debug message
func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		debugLog.Output(2, fmt.Sprintf(format, v...))
	}
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		infoLog.Output(2, fmt.Sprintf(format, v...))
	}
}

// Warn logs a warning message
func Warn(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		warnLog.Output(2, fmt.Sprintf(format, v...))
	}
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		errorLog.Output(2, fmt.Sprintf(format, v...))
	}
}
