// Package slog provides structured logging for mung.
// It is a wrapper for the https://pkg.go.dev/log/slog package
// with some extra functionality to configure levels and formatters.
package slog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

type (
	// A Handler handles log records produced by a Logger.
	Handler = slog.Handler

	// HandlerOptions are options for a text or JSON handler.
	// A zero HandlerOptions consists entirely of default values.
	HandlerOptions = slog.HandlerOptions

	// Level determines the importance or severity of a log record
	Level = slog.Level

	// Logger represents a logger instance with its own context.
	Logger struct {
		*slog.Logger
	}

	// Format determines the output format of the log records
	Format string
)

// All available log levels
const (
	LevelInfo    Level = slog.LevelInfo
	LevelDebug   Level = slog.LevelDebug
	LevelWarn    Level = slog.LevelWarn
	LevelError   Level = slog.LevelError
	LevelDisable Level = math.MaxInt
)

// All available log formats
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Default configurations
const (
	DefaultLevel  = slog.LevelWarn
	DefaultFormat = FormatText
)

// Config represents log configuration.
type Config struct {
	Level  Level
	Format Format
}

// Verbose returns a copy of the config with the level lowered once per verbosity
// step, so a warn level becomes info with 1 and debug with 2.
// The level is never lowered below debug, and a disabled log stays disabled.
func (c Config) Verbose(verbosity int) Config {
	if c.Level == LevelDisable {
		return c
	}
	for range verbosity {
		if c.Level <= LevelDebug {
			break
		}
		c.Level -= 4
	}
	return c
}

// With calls Logger.With returning a new Logger instance.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// LoadConfig will load the log Config from environment variables.
// The name is used as a prefix for the environment variables.
// So a name "MUNG" will load the log level from "MUNG_LOG_LEVEL".
//
// Available log levels are: "debug", "info", "warn", "error", "disable"
// Available log fmts are: "text", "json"
//
// If the environment variables are not found it will use default values.
func LoadConfig(name string) (Config, error) {
	level := os.Getenv(name + "_LOG_LEVEL")
	format := os.Getenv(name + "_LOG_FMT")

	logFormat, err := ParseFormat(format)
	if err != nil {
		return Config{}, err
	}

	logLevel, err := ParseLevel(level)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Level:  logLevel,
		Format: logFormat,
	}, nil
}

// New creates a new Logger with the given non-nil Handler.
func New(h Handler) *Logger {
	return &Logger{slog.New(h)}
}

// NewHandler creates a handler for the given format writing to w.
func NewHandler(w io.Writer, format Format, opts *HandlerOptions) (Handler, error) {
	switch format {
	case FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format: %v", format)
}

// NewLogger creates a Logger writing to w with the given configuration.
func NewLogger(w io.Writer, cfg Config) (*Logger, error) {
	handler, err := NewHandler(w, cfg.Format, &slog.HandlerOptions{Level: cfg.Level})
	if err != nil {
		return nil, err
	}
	return New(handler), nil
}

// Default creates a new [Logger] with default configurations.
func Default() *Logger {
	return &Logger{slog.Default()}
}

// FromCtx gets the [Logger] associated with the given context. A default [Logger] is
// returned if the context has no [Logger] associated with it.
func FromCtx(ctx context.Context) *Logger {
	val := ctx.Value(loggerKey)
	log, ok := val.(*Logger)
	if !ok {
		return Default()
	}
	return log
}

// NewContext creates a new [context.Context] with the given [Logger] associated with it.
// Call [FromCtx] to retrieve the [Logger].
func NewContext(ctx context.Context, log *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// key is the type used to store data on contexts.
type key int

const (
	loggerKey key = iota
)

// ParseLevel parses the string and returns the corresponding [Level].
// The empty string is the [DefaultLevel].
func ParseLevel(level string) (Level, error) {
	level = strings.ToLower(level)
	switch level {
	case "":
		return DefaultLevel, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "disable":
		return LevelDisable, nil
	default:
		return Level(666), fmt.Errorf("invalid log level: %q", level)
	}
}

// ParseFormat parses the string and returns the corresponding [Format].
func ParseFormat(format string) (Format, error) {
	switch Format(format) {
	case FormatText, FormatJSON:
		return Format(format), nil
	case "":
		return DefaultFormat, nil
	default:
		return "", fmt.Errorf("unknown log format %q", format)
	}
}
