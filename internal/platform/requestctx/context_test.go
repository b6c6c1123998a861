package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type otherKey struct{}

func TestActorSlotIsSharedWithChildContexts(t *testing.T) {
	ctx := context.Background()
	SetActor(ctx, "ignored")
	assert.Empty(t, Actor(ctx))

	ctx = WithActorSlot(ctx)
	assert.Empty(t, Actor(ctx))

	child := context.WithValue(ctx, otherKey{}, 1)
	SetActor(child, "ops@brc.example")
	assert.Equal(t, "ops@brc.example", Actor(ctx))
}

func TestLoggerFallsBackToNop(t *testing.T) {
	assert.Same(t, NoopLogger(), Logger(context.Background()))
	assert.Same(t, NoopLogger(), Logger(WithLogger(context.Background(), nil)))

	logger := zap.NewExample()
	assert.Same(t, logger, Logger(WithLogger(context.Background(), logger)))
}

func TestTraceResource(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", ProjectID: "brc-prod"})
	info, ok := Trace(ctx)
	assert.True(t, ok)
	assert.Equal(t, "projects/brc-prod/traces/4bf92f3577b34da6a3ce929d0e0e4736", info.Resource())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceID(ctx))

	assert.Empty(t, TraceInfo{TraceID: "abc"}.Resource())
	assert.Empty(t, TraceID(context.Background()))
}
