// Package logging provides leveled, printf-style logging for the whole tool.
// Output defaults to stderr; format is plain text or line-delimited JSON.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level controls which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. It accepts any case but no
// surrounding whitespace; "warning" is an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG", "Debug":
		return LevelDebug, nil
	case "info", "INFO", "Info":
		return LevelInfo, nil
	case "warn", "WARN", "Warn", "warning", "WARNING", "Warning":
		return LevelWarn, nil
	case "error", "ERROR", "Error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

var (
	mu     sync.Mutex
	level            = LevelInfo
	format           = "text"
	out    io.Writer = os.Stderr
)

// SetLevel sets the minimum level that is emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return level
}

// SetFormat selects the output format: "text" or "json".
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	if f == "json" || f == "text" {
		format = f
	}
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		out = os.Stderr
		return
	}
	out = w
}

type jsonEntry struct {
	TS    string `json:"ts"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func logf(l Level, formatStr string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	msg := fmt.Sprintf(formatStr, args...)
	now := time.Now()

	if format == "json" {
		entry := jsonEntry{
			TS:    now.Format(time.RFC3339Nano),
			Level: levelLower(l),
			Msg:   msg,
		}
		b, err := json.Marshal(entry)
		if err != nil {
			fmt.Fprintf(out, "{\"ts\":%q,\"level\":\"error\",\"msg\":\"log marshal failed\"}\n", now.Format(time.RFC3339Nano))
			return
		}
		fmt.Fprintln(out, string(b))
		return
	}

	fmt.Fprintf(out, "%s [%s] %s\n", now.Format("2006-01-02 15:04:05"), l.String(), msg)
}

func levelLower(l Level) string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Debug logs at debug level.
func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args...) }

// Info logs at info level.
func Info(format string, args ...interface{}) { logf(LevelInfo, format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...interface{}) { logf(LevelWarn, format, args...) }

// Error logs at error level.
func Error(format string, args ...interface{}) { logf(LevelError, format, args...) }
