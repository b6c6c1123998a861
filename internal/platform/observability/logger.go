package observability

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brc-ops/backoffice/internal/platform/requestctx"
)

type loggerConfig struct {
	level  zapcore.Level
	output io.Writer
}

// LoggerOption adjusts NewLogger.
type LoggerOption func(*loggerConfig)

// WithLevel sets the minimum level by name ("debug", "warn", ...). Unknown names keep info.
func WithLevel(name string) LoggerOption {
	return func(c *loggerConfig) {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err == nil {
			c.level = level
		}
	}
}

// WithOutput redirects log lines, mostly for tests.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) {
		if w != nil {
			c.output = w
		}
	}
}

// NewLogger returns a JSON logger using Cloud Logging's field names
// (severity, message, timestamp) so entries are parsed as structured payloads.
func NewLogger(opts ...LoggerOption) (*zap.Logger, error) {
	cfg := loggerConfig{level: zapcore.InfoLevel, output: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "severity",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "message",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   severity,
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	})
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(cfg.output)), cfg.level)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

// severity maps zap levels onto Cloud Logging's LogSeverity names.
func severity(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString("DEBUG")
	case zapcore.InfoLevel:
		enc.AppendString("INFO")
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.ErrorLevel:
		enc.AppendString("ERROR")
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString("EMERGENCY")
	}
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// EventLogger adapts zap to the func(ctx, event, fields) hook services take.
// The request logger wins over fallback. Event names whose last segment ends
// in _failed or _missing, or starts with malformed_, log at warn.
func EventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}
		level := zapcore.InfoLevel
		if warns(event) {
			level = zapcore.WarnLevel
		}
		ce := logger.Check(level, event)
		if ce == nil {
			return
		}
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := append(make([]zap.Field, 0, len(keys)+1), zap.String("event", event))
		for _, key := range keys {
			out = append(out, zap.Any(key, fields[key]))
		}
		ce.Write(out...)
	}
}

func warns(event string) bool {
	last := event[strings.LastIndex(event, ".")+1:]
	return strings.HasSuffix(last, "_failed") || strings.HasSuffix(last, "_missing") || strings.HasPrefix(last, "malformed_")
}
