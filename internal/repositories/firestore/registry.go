package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider *pfirestore.Provider
	counters *CounterRepository
	rates    *RateRepository
	skuMaps  *SKUMapRepository
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every repository on the shared provider. The health repository is optional.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("counter repository: %w", err)
	}
	rates, err := NewRateRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("rate repository: %w", err)
	}
	skuMaps, err := NewSKUMapRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("sku map repository: %w", err)
	}
	return &Registry{
		provider: provider,
		counters: counters,
		rates:    rates,
		skuMaps:  skuMaps,
		health:   health,
	}, nil
}

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Rates() repositories.RateRepository       { return r.rates }
func (r *Registry) SKUMaps() repositories.SKUMapRepository   { return r.skuMaps }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
