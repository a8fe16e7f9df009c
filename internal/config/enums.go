package config

import (
	"log/slog"

	"github.com/Silberengel/scriptorium/internal/foundation/normalization"
)

// RetryBackoffMode enumerates supported backoff strategies for retries.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

var retryBackoffNormalizer = normalization.NewNormalizer(map[string]RetryBackoffMode{
	"fixed":       RetryBackoffFixed,
	"linear":      RetryBackoffLinear,
	"exponential": RetryBackoffExponential,
}, "")

// NormalizeRetryBackoff converts user input (case-insensitive) into a typed mode, returning empty string for unknown.
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	return retryBackoffNormalizer.Normalize(raw)
}

// SourceType names the input format handed to the source adapters.
type SourceType string

const (
	// SourceAuto picks the adapter from the input file extension.
	SourceAuto     SourceType = ""
	SourceHTML     SourceType = "HTML"
	SourceADOC     SourceType = "ADOC"
	SourceMarkdown SourceType = "MARKDOWN"
	SourceText     SourceType = "TEXT"
)

var sourceTypeNormalizer = normalization.NewNormalizer(map[string]SourceType{
	"html":     SourceHTML,
	"htm":      SourceHTML,
	"adoc":     SourceADOC,
	"asciidoc": SourceADOC,
	"markdown": SourceMarkdown,
	"md":       SourceMarkdown,
	"text":     SourceText,
	"txt":      SourceText,
}, SourceAuto)

// ParseSourceType validates a source type; empty input yields SourceAuto.
func ParseSourceType(raw string) (SourceType, error) {
	return sourceTypeNormalizer.NormalizeWithError(raw)
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var logLevelNormalizer = normalization.NewNormalizer(map[string]LogLevel{
	"debug":   LogLevelDebug,
	"info":    LogLevelInfo,
	"warn":    LogLevelWarn,
	"warning": LogLevelWarn,
	"error":   LogLevelError,
}, LogLevelInfo)

func NormalizeLogLevel(raw string) LogLevel {
	return logLevelNormalizer.Normalize(raw)
}

// SlogLevel maps the level onto log/slog.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

var logFormatNormalizer = normalization.NewNormalizer(map[string]LogFormat{
	"json": LogFormatJSON,
	"text": LogFormatText,
}, LogFormatText)

func NormalizeLogFormat(raw string) LogFormat {
	return logFormatNormalizer.Normalize(raw)
}
