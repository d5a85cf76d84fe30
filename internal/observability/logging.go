package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the logging behavior.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error"
	Level string `yaml:"level" json:"level"`

	// Format specifies output format: "json" or "text"
	Format string `yaml:"format" json:"format"`

	// Output is the writer for log output (defaults to os.Stdout)
	Output io.Writer `yaml:"-" json:"-"`

	// AddSource includes file and line number in log records
	AddSource bool `yaml:"add_source" json:"add_source"`

	// RedactPatterns are additional regex patterns for sensitive data redaction.
	RedactPatterns []string `yaml:"redact_patterns" json:"redact_patterns"`
}

// DefaultRedactPatterns contains regex patterns for common sensitive data.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,

	// Anthropic API keys
	`sk-ant-[a-zA-Z0-9_-]{32,}`,

	// OpenAI API keys, including project keys
	`sk-(proj-)?[a-zA-Z0-9_-]{32,}`,

	// Resend API keys
	`re_[a-zA-Z0-9_]{20,}`,

	// JWT tokens (OAuth state, access tokens)
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

const redactedText = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are always redacted.
var sensitiveKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"bearer_token":  {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"password":      {},
	"secret":        {},
}

// NewLogger creates a structured logger with the given configuration.
//
// If config.Output is nil, logs are written to os.Stdout. An empty or invalid
// level means "info"; an empty format means "json". Records pass through a
// handler that redacts secrets and adds correlation IDs from the context.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Format == "" {
		config.Format = "json"
	}

	opts := &slog.HandlerOptions{
		Level:     LogLevelFromString(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	return slog.New(NewRedactingHandler(handler, config.RedactPatterns...))
}

// RedactingHandler wraps a slog.Handler, scrubbing secrets from messages and
// attribute values before they reach the inner handler.
type RedactingHandler struct {
	inner   slog.Handler
	redacts []*regexp.Regexp
}

// NewRedactingHandler wraps inner with the default patterns plus extra.
// Patterns that fail to compile are skipped.
func NewRedactingHandler(inner slog.Handler, extra ...string) *RedactingHandler {
	all := append(append([]string(nil), DefaultRedactPatterns...), extra...)
	redacts := make([]*regexp.Regexp, 0, len(all))
	for _, pattern := range all {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}
	return &RedactingHandler{inner: inner, redacts: redacts}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactString(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	for _, key := range correlationKeys {
		if v := stringValue(ctx, key); v != "" {
			out.AddAttrs(slog.String(string(key), v))
		}
	}
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redacts: h.redacts}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redacts: h.redacts}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redactedText)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, ga := range group {
			attrs[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, attrs...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok && err != nil {
			return slog.String(a.Key, h.redactString(err.Error()))
		}
		return a
	default:
		return a
	}
}

func (h *RedactingHandler) redactString(s string) string {
	for _, re := range h.redacts {
		s = re.ReplaceAllString(s, redactedText)
	}
	return s
}

// LogLevelFromString converts a string to a slog.Level.
// Returns LevelInfo if the string is not recognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
