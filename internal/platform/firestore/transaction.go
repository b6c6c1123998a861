package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc is the body of a transaction. Firestore may call it again on contention,
// so it must not have side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxPolicy bounds a transaction's retries and its total wall time.
type TxPolicy struct {
	MaxAttempts int
	Budget      time.Duration
}

// DefaultTxPolicy is used by Provider.RunTransaction.
var DefaultTxPolicy = TxPolicy{MaxAttempts: 5, Budget: 15 * time.Second}

func (p TxPolicy) orDefault() TxPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultTxPolicy.MaxAttempts
	}
	if p.Budget <= 0 {
		p.Budget = DefaultTxPolicy.Budget
	}
	return p
}

// RunTransaction runs fn on client under policy. A caller deadline shorter than the
// policy budget wins.
func RunTransaction(ctx context.Context, client *firestore.Client, policy TxPolicy, fn TxFunc) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}
	policy = policy.orDefault()

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline || time.Until(deadline) > policy.Budget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Budget)
		defer cancel()
	}

	return WrapError("transaction", client.RunTransaction(ctx, fn, firestore.MaxAttempts(policy.MaxAttempts)))
}
