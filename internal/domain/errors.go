package domain

import "errors"

var (
	// ErrProductNotFound is reported by metadata providers for unknown products or SKUs.
	ErrProductNotFound = errors.New("domain: product not found")
	// ErrOrderNotFound is reported by order sources for unknown orders.
	ErrOrderNotFound = errors.New("domain: order not found")
)
