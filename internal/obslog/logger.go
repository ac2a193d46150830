// Package obslog provides structured logging for the CV wizard backend: a
// thin wrapper over log/slog that correlates records to a session/stage/trace
// and redacts API keys and other secrets before they reach the sink.
package obslog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger is a structured logger with built-in session/stage correlation and
// secret redaction.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// Config configures a Logger.
type Config struct {
	// Level is "debug", "info", "warn", or "error".
	Level string
	// Format is "json" or "text".
	Format string
	// Output defaults to os.Stdout.
	Output io.Writer
	// AddSource includes file:line in each record.
	AddSource bool
}

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	traceIDKey   ctxKey = "trace_id"
	stageKey     ctxKey = "stage"
)

// redactPatterns covers provider API keys and bearer tokens; trace records
// must never carry secrets per the gateway's tracing contract.
var redactPatterns = []string{
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{20,}`,
	`(?i)(bearer|authorization)[\s:]+[a-zA-Z0-9_\-\.]{16,}`,
	`(?i)(api[_-]?key)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
}

// New builds a Logger. Zero Config yields info-level JSON logging to stdout.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	redacts := make([]*regexp.Regexp, 0, len(redactPatterns))
	for _, p := range redactPatterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

// WithSession adds a session id to the context for correlated logging.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithTrace adds a trace id to the context.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithStage adds the current wizard stage to the context.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }
func (l *Logger) Info(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelWarn, msg, args...) }
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redact(msg)

	attrs := make([]any, 0, len(args)+6)
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		attrs = append(attrs, "session_id", v)
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		attrs = append(attrs, "trace_id", v)
	}
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		attrs = append(attrs, "stage", v)
	}

	for i := 0; i < len(args); i++ {
		attrs = append(attrs, l.redactValue(args[i]))
	}

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		return l.redact(t)
	case error:
		return l.redact(t.Error())
	default:
		if b, err := json.Marshal(t); err == nil {
			s := l.redact(string(b))
			if s != string(b) {
				return s
			}
		}
		return v
	}
}

func (l *Logger) redact(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithFields returns a child logger that always includes the given attrs.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}
