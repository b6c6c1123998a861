package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

// loadOrder fetches an order under a bounded timeout and maps source errors onto service sentinels.
func loadOrder(ctx context.Context, source OrderSource, orderID string, timeout time.Duration) (Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	order, err := source.Order(callCtx, orderID)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	default:
		return Order{}, fmt.Errorf("%w: order %s: %w", ErrUpstreamFetch, orderID, err)
	}
}

func noopLogger(context.Context, string, map[string]any) {}
