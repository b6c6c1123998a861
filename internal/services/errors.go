package services

import (
	"errors"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/repositories"
)

var (
	// ErrUpstreamFetch wraps any metadata, inventory, or order lookup failure.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrOrderNotFound indicates the requested order does not exist upstream.
	ErrOrderNotFound = errors.New("order not found")
	// ErrUnavailable indicates an optional integration is not configured.
	ErrUnavailable = errors.New("service unavailable")
)

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isProductNotFound(err error) bool {
	return errors.Is(err, domain.ErrProductNotFound)
}
