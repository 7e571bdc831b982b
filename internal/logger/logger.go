package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a --log-level value to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

// Colors for terminal output
const (
	colorReset = "\033[0m"
	colorDebug = "\033[36m" // Cyan
	colorInfo  = "\033[32m" // Green
	colorWarn  = "\033[33m" // Yellow
	colorError = "\033[31m" // Red
)

func (l Level) Color() string {
	switch l {
	case DEBUG:
		return colorDebug
	case INFO:
		return colorInfo
	case WARN:
		return colorWarn
	case ERROR:
		return colorError
	default:
		return colorReset
	}
}

// sink is shared by every logger derived from the default one, so a later
// Init or SetOutput reaches component loggers created at package init.
type sink struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel Level
	useColor bool
}

// Logger provides component-scoped logging with key/value fields.
type Logger struct {
	sink      *sink
	component string
	fields    map[string]any
}

// Config for creating a new logger
type Config struct {
	Output   io.Writer
	MinLevel Level
	UseColor bool
}

var (
	defaultSink = &sink{output: os.Stdout, minLevel: INFO, useColor: true}
	redirect    sync.Once
)

// Init configures the default logger. It may be called more than once; the
// latest configuration wins for every logger, including component loggers
// created earlier.
func Init(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	defaultSink.mu.Lock()
	defaultSink.output = cfg.Output
	defaultSink.minLevel = cfg.MinLevel
	defaultSink.useColor = cfg.UseColor
	defaultSink.mu.Unlock()

	redirect.Do(func() {
		// Redirect standard log (net/http server errors) to our logger
		log.SetOutput(&logAdapter{logger: WithComponent("STDLIB")})
		log.SetFlags(0)
	})
}

// logAdapter adapts standard log to our logger
type logAdapter struct {
	logger *Logger
}

func (a *logAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	a.logger.Warn("%s", msg)
	return len(p), nil
}

// Default returns the default logger
func Default() *Logger {
	return &Logger{sink: defaultSink, fields: map[string]any{}}
}

// WithComponent creates a logger with a component name
func WithComponent(component string) *Logger {
	return &Logger{
		sink:      defaultSink,
		component: component,
		fields:    map[string]any{},
	}
}

// WithField returns a new logger with an additional field
func (l *Logger) WithField(key string, value any) *Logger {
	return l.WithFields(map[string]any{key: value})
}

// WithFields returns a new logger with additional fields
func (l *Logger) WithFields(fields map[string]any) *Logger {
	newFields := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &Logger{
		sink:      l.sink,
		component: l.component,
		fields:    newFields,
	}
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level Level) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.minLevel
}

func (l *Logger) log(level Level, msg string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.minLevel {
		return
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var sb strings.Builder
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	if l.sink.useColor {
		fmt.Fprintf(&sb, "%s[%s]%s ", level.Color(), level.String(), colorReset)
	} else {
		fmt.Fprintf(&sb, "[%s] ", level.String())
	}

	sb.WriteString(timestamp)

	if l.component != "" {
		fmt.Fprintf(&sb, " [%s]", l.component)
	}

	sb.WriteString(" ")
	sb.WriteString(msg)

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" |")
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
		}
	}

	sb.WriteString("\n")

	fmt.Fprint(l.sink.output, sb.String())
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.log(ERROR, msg, args...)
}

// ErrorWithStack logs an error with stack trace
func (l *Logger) ErrorWithStack(msg string, err error) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	l.WithField("error", err.Error()).WithField("stack", string(buf[:n])).Error("%s", msg)
}

// Package-level convenience functions

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
