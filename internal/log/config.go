package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the output format for logs
type Format int

const (
	// FormatJSON outputs logs in JSON format
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable key=value format
	FormatText
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatText {
		return "text"
	}
	return "json"
}

// ParseFormat parses a string into a Format. Unknown values yield JSON.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "console":
		return FormatText
	default:
		return FormatJSON
	}
}

// Level represents the severity of a log message
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
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

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a string into a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
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

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level Level

	// Format is the output format (JSON or Text)
	Format Format

	// Output is where logs are written. Nil means stderr.
	Output io.Writer

	// AddSource includes source file and line number in logs
	AddSource bool

	ServiceName    string
	ServiceVersion string
}

// DefaultConfig logs at INFO in JSON to stderr.
// Stdout is left to command output.
func DefaultConfig() Config {
	return Config{
		Level:          LevelInfo,
		Format:         FormatJSON,
		Output:         os.Stderr,
		ServiceName:    "storefront",
		ServiceVersion: "dev",
	}
}

// DevelopmentConfig logs at DEBUG in text with source locations.
func DevelopmentConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = LevelDebug
	cfg.Format = FormatText
	cfg.AddSource = true
	return cfg
}

// ConfigFrom builds a Config from the string settings found in config files and flags.
func ConfigFrom(level, format, version string) Config {
	cfg := DefaultConfig()
	cfg.Level = ParseLevel(level)
	cfg.Format = ParseFormat(format)
	if version != "" {
		cfg.ServiceVersion = version
	}
	return cfg
}
