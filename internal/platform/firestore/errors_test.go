package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorKinds(t *testing.T) {
	for code, want := range map[codes.Code]Kind{
		codes.NotFound:          KindNotFound,
		codes.AlreadyExists:     KindConflict,
		codes.Aborted:           KindConflict,
		codes.Unavailable:       KindUnavailable,
		codes.ResourceExhausted: KindUnavailable,
		codes.InvalidArgument:   KindInvalid,
		codes.PermissionDenied:  KindUnknown,
	} {
		err := WrapError("rateTables.get", status.Error(code, "boom"))
		var tagged *Error
		require.ErrorAs(t, err, &tagged, code.String())
		assert.Equal(t, want, tagged.Kind(), code.String())
		assert.Equal(t, want == KindNotFound, tagged.IsNotFound())
		assert.Equal(t, want == KindConflict, tagged.IsConflict())
		assert.Equal(t, want == KindUnavailable, tagged.IsUnavailable())
		assert.Contains(t, err.Error(), "rateTables.get: ")
	}
}

func TestWrapErrorContextSentinels(t *testing.T) {
	assert.NoError(t, WrapError("op", nil))
	assert.Equal(t, context.Canceled, WrapError("op", context.Canceled))
	assert.Equal(t, context.Canceled, WrapError("op", status.Error(codes.Canceled, "x")))
	assert.Equal(t, context.DeadlineExceeded, WrapError("op", status.Error(codes.DeadlineExceeded, "x")))
}

func TestWrapErrorKeepsFirstOperation(t *testing.T) {
	inner := WrapError("counters.get", status.Error(codes.NotFound, "gone"))
	outer := WrapError("counters.next", fmt.Errorf("tx: %w", inner))

	assert.True(t, IsNotFound(outer))
	assert.Contains(t, outer.Error(), "counters.get")
	assert.False(t, IsNotFound(errors.New("plain")))
}
