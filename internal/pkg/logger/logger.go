package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var slogLevels = map[Level]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger writes structured entries through slog with optional PII redaction.
type Logger struct {
	mu        sync.RWMutex
	level     *slog.LevelVar
	handler   slog.Handler
	redactPII bool
}

var defaultLogger = newLogger(os.Stderr, "json")

func newLogger(w io.Writer, format string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelInfo)
	return &Logger{level: lv, handler: newHandler(w, format, lv), redactPII: true}
}

func newHandler(w io.Writer, format string, lv *slog.LevelVar) slog.Handler {
	if format == "console" {
		return tint.NewHandler(w, &tint.Options{Level: lv, TimeFormat: time.Kitchen})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})
}

// Configure switches the output format ("json" or "console") and level of the
// default logger.
func Configure(w io.Writer, format string, level Level) {
	defaultLogger.mu.Lock()
	defaultLogger.handler = newHandler(w, format, defaultLogger.level)
	defaultLogger.mu.Unlock()
	SetLevel(level)
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level.Set(slogLevels[l]) }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactPII = r
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	sl := slogLevels[level]
	ctx := context.Background()

	l.mu.RLock()
	h, redact := l.handler, l.redactPII
	l.mu.RUnlock()

	if !h.Enabled(ctx, sl) {
		return
	}

	rec := slog.NewRecord(time.Now().UTC(), sl, msg, 0)
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		rec.AddAttrs(fieldAttr(key, fields[i+1], redact))
	}
	_ = h.Handle(ctx, rec)
}

func fieldAttr(key string, v interface{}, redact bool) slog.Attr {
	switch val := v.(type) {
	case error:
		v = val.Error()
	case fmt.Stringer:
		v = val.String()
	}
	if s, ok := v.(string); ok {
		if redact {
			s = redactPIIValue(key, s)
		}
		return slog.String(key, s)
	}
	return slog.Any(key, v)
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") || key == "to" || key == "recipient" {
		return RedactEmail(val)
	}
	// embedded addresses in free-form fields such as "error"
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}
