// SPDX-License-Identifier: MIT
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options configures the process-wide logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output io.Writer
}

// --- Global Logger State ---

// currentLevel holds the current global log level atomically.
var currentLevel atomic.Uint32

// root is swapped as a whole by Init; component loggers derive from it lazily.
var root atomic.Pointer[zerolog.Logger]

func init() {
	Init(Options{Level: "info", Format: "console", Output: os.Stderr})
}

// Init replaces the global logger. Unknown levels fall back to info.
func Init(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.ToLower(opts.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.StampMicro}
	}

	zl := zerolog.New(out).With().Timestamp().Logger()
	root.Store(&zl)

	level, _ := ParseLevel(opts.Level)
	SetLevel(level)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	zerolog.SetGlobalLevel(level.zerolog())
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// shouldLog checks if a message at the given level should be logged based on the current global level.
func shouldLog(level LogLevel) bool {
	return level >= GetLevel()
}

func event(level LogLevel) *zerolog.Event {
	zl := root.Load()
	switch level {
	case LevelDebug:
		return zl.Debug()
	case LevelWarn:
		return zl.Warn()
	case LevelError:
		return zl.Error()
	case LevelFatal:
		return zl.Fatal()
	default:
		return zl.Info()
	}
}

// --- Component loggers ---

// Logger is a component-tagged view of the global logger.
type Logger struct {
	component string
}

// WithComponent returns a logger whose lines carry component=name.
func WithComponent(name string) *Logger {
	return &Logger{component: name}
}

func (l *Logger) log(level LogLevel, msg string) {
	if !shouldLog(level) && level != LevelFatal {
		return
	}
	event(level).Str("component", l.component).Msg(msg)
}

// Debugf logs a formatted debug message tagged with the component.
func (l *Logger) Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		l.log(LevelDebug, fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message tagged with the component.
func (l *Logger) Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		l.log(LevelInfo, fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning tagged with the component.
func (l *Logger) Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		l.log(LevelWarn, fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error tagged with the component.
func (l *Logger) Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		l.log(LevelError, fmt.Sprintf(format, v...))
	}
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) {
	if shouldLog(LevelDebug) {
		event(LevelDebug).Msg(fmt.Sprintf(format, v...))
	}
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) {
	if shouldLog(LevelInfo) {
		event(LevelInfo).Msg(fmt.Sprintf(format, v...))
	}
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) {
	if shouldLog(LevelWarn) {
		event(LevelWarn).Msg(fmt.Sprintf(format, v...))
	}
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) {
	if shouldLog(LevelError) {
		event(LevelError).Msg(fmt.Sprintf(format, v...))
	}
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	event(LevelFatal).Msg(fmt.Sprintf(format, v...))
}

// --- Functions without formatting (convenience) ---

// Debug logs a debug message if the level is appropriate.
func Debug(v ...any) {
	if shouldLog(LevelDebug) {
		event(LevelDebug).Msg(fmt.Sprint(v...))
	}
}

// Info logs an info message if the level is appropriate.
func Info(v ...any) {
	if shouldLog(LevelInfo) {
		event(LevelInfo).Msg(fmt.Sprint(v...))
	}
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...any) {
	if shouldLog(LevelWarn) {
		event(LevelWarn).Msg(fmt.Sprint(v...))
	}
}

// Error logs an error message if the level is appropriate.
func Error(v ...any) {
	if shouldLog(LevelError) {
		event(LevelError).Msg(fmt.Sprint(v...))
	}
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...any) {
	event(LevelFatal).Msg(fmt.Sprint(v...))
}
