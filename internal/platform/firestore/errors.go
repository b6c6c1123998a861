package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the repository-level category of a Firestore failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindUnavailable
	KindInvalid
)

var kindByCode = map[codes.Code]Kind{
	codes.NotFound:           KindNotFound,
	codes.AlreadyExists:      KindConflict,
	codes.FailedPrecondition: KindConflict,
	codes.Aborted:            KindConflict,
	codes.OutOfRange:         KindConflict,
	codes.Unavailable:        KindUnavailable,
	codes.ResourceExhausted:  KindUnavailable,
	codes.Internal:           KindUnavailable,
	codes.InvalidArgument:    KindInvalid,
}

// Error satisfies repositories.RepositoryError.
type Error struct {
	op   string
	err  error
	kind Kind
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// Kind reports the failure category.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) IsNotFound() bool    { return e.kind == KindNotFound }
func (e *Error) IsConflict() bool    { return e.kind == KindConflict }
func (e *Error) IsUnavailable() bool { return e.kind == KindUnavailable }

// WrapError tags err with op and a Kind derived from its gRPC status.
// Cancellation and deadline errors are returned as the context sentinels, unwrapped.
func WrapError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	switch code := status.Code(err); code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return &Error{op: op, err: err, kind: kindByCode[code]}
	}
}

// IsNotFound reports whether err wraps a not-found *Error.
func IsNotFound(err error) bool {
	var tagged *Error
	return errors.As(err, &tagged) && tagged.IsNotFound()
}
