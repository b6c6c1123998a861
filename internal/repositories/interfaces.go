package repositories

import (
	"context"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

// Registry is the storage backend handed to the DI container.
type Registry interface {
	Rates() RateRepository
	SKUMaps() SKUMapRepository
	Counters() CounterRepository
	Health() HealthRepository
	Close(ctx context.Context) error
}

// RepositoryError lets services branch on storage failures without importing the backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// RateRepository holds the three tables the rate resolver reads: country to zone per courier,
// weight bands per courier zone, and per-country special bands that override the zone table.
// Reads of absent rows fail with a RepositoryError reporting IsNotFound.
type RateRepository interface {
	Zone(ctx context.Context, courier, country string) (domain.ZoneMapping, error)
	RateTable(ctx context.Context, courier, zone string) (domain.RateTable, error)
	SpecialRates(ctx context.Context, courier, country string) (domain.SpecialRateTable, error)

	PutZone(ctx context.Context, mapping domain.ZoneMapping) (domain.ZoneMapping, error)
	PutRateTable(ctx context.Context, table domain.RateTable) (domain.RateTable, error)
	PutSpecialRates(ctx context.Context, table domain.SpecialRateTable) (domain.SpecialRateTable, error)
	DeleteSpecialRates(ctx context.Context, courier, country string) error
}

// SKUMapRepository maps a storefront SKU to the warehouse SKUs sent to Flexport.
type SKUMapRepository interface {
	Get(ctx context.Context, sku string) (domain.SKUMap, error)
	List(ctx context.Context) ([]domain.SKUMap, error)
	Put(ctx context.Context, mapping domain.SKUMap) (domain.SKUMap, error)
	Delete(ctx context.Context, sku string) error
}

// CounterRepository issues gap-free sequence values. Next is atomic per counter id.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig is merged into a counter by Configure; zero or nil fields are left alone.
type CounterConfig struct {
	Step    int64
	Ceiling *int64
	Start   *int64
}

type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
