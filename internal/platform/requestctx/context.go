// Package requestctx carries per-request values (logger, trace, acting staff member)
// between middleware and handlers.
package requestctx

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	actorKey  struct{}
)

var nop = zap.NewNop()

// TraceInfo is the Cloud Trace context of the current request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Resource returns the trace name Cloud Logging links entries to, or "" without a project.
func (t TraceInfo) Resource() string {
	if t.ProjectID == "" || t.TraceID == "" {
		return ""
	}
	return "projects/" + t.ProjectID + "/traces/" + t.TraceID
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger attaches logger; a nil logger attaches the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(orBackground(ctx), loggerKey{}, logger)
}

// Logger returns the request logger, or the no-op logger when none is attached.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := orBackground(ctx).Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return nop
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return nop }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	info, ok := orBackground(ctx).Value(traceKey{}).(TraceInfo)
	return info, ok
}

func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithActorSlot reserves a slot that authentication fills in later. Middleware that runs
// before authentication can read the staff member back once the handler returns.
func WithActorSlot(ctx context.Context) context.Context {
	return context.WithValue(orBackground(ctx), actorKey{}, new(atomic.Value))
}

// SetActor fills the slot; it does nothing when no slot was reserved.
func SetActor(ctx context.Context, actor string) {
	if slot, ok := orBackground(ctx).Value(actorKey{}).(*atomic.Value); ok {
		slot.Store(actor)
	}
}

// Actor returns the staff member stored by SetActor.
func Actor(ctx context.Context) string {
	slot, ok := orBackground(ctx).Value(actorKey{}).(*atomic.Value)
	if !ok {
		return ""
	}
	actor, _ := slot.Load().(string)
	return actor
}
