package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/repositories"
)

const (
	zonesCollection        = "courierZones"
	rateTablesCollection   = "rateTables"
	specialRatesCollection = "specialRates"
)

type zoneDocument struct {
	Courier   string    `firestore:"courier"`
	Country   string    `firestore:"country"`
	Zone      string    `firestore:"zone"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// Amounts are stored as decimal strings so Firestore never rounds them through float64.
type bandDocument struct {
	Weight string `firestore:"weight"`
	Rate   string `firestore:"rate"`
}

type rateTableDocument struct {
	Courier   string         `firestore:"courier"`
	Zone      string         `firestore:"zone"`
	Bands     []bandDocument `firestore:"bands"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

type specialRatesDocument struct {
	Courier   string         `firestore:"courier"`
	Country   string         `firestore:"country"`
	Bands     []bandDocument `firestore:"bands"`
	UpdatedAt time.Time      `firestore:"updatedAt"`
}

// RateRepository persists courier rate data in three collections keyed by courier and country or zone.
type RateRepository struct {
	zones   *pfirestore.Collection[zoneDocument]
	tables  *pfirestore.Collection[rateTableDocument]
	special *pfirestore.Collection[specialRatesDocument]
	now     func() time.Time
}

var _ repositories.RateRepository = (*RateRepository)(nil)

// NewRateRepository constructs a Firestore-backed rate repository.
func NewRateRepository(provider *pfirestore.Provider) (*RateRepository, error) {
	if provider == nil {
		return nil, errors.New("rate repository requires firestore provider")
	}
	return &RateRepository{
		zones:   pfirestore.NewCollection[zoneDocument](provider, zonesCollection),
		tables:  pfirestore.NewCollection[rateTableDocument](provider, rateTablesCollection),
		special: pfirestore.NewCollection[specialRatesDocument](provider, specialRatesCollection),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *RateRepository) Zone(ctx context.Context, courier, country string) (domain.ZoneMapping, error) {
	doc, err := r.zones.Get(ctx, rateKey(courier, country))
	if err != nil {
		return domain.ZoneMapping{}, err
	}
	return domain.ZoneMapping{
		Courier:   doc.Data.Courier,
		Country:   doc.Data.Country,
		Zone:      doc.Data.Zone,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *RateRepository) RateTable(ctx context.Context, courier, zone string) (domain.RateTable, error) {
	doc, err := r.tables.Get(ctx, rateKey(courier, zone))
	if err != nil {
		return domain.RateTable{}, err
	}
	bands, err := decodeBands(doc.Data.Bands)
	if err != nil {
		return domain.RateTable{}, fmt.Errorf("rate table %s: %w", doc.ID, err)
	}
	return domain.RateTable{
		Courier:   doc.Data.Courier,
		Zone:      doc.Data.Zone,
		Bands:     bands,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *RateRepository) SpecialRates(ctx context.Context, courier, country string) (domain.SpecialRateTable, error) {
	doc, err := r.special.Get(ctx, rateKey(courier, country))
	if err != nil {
		return domain.SpecialRateTable{}, err
	}
	bands, err := decodeBands(doc.Data.Bands)
	if err != nil {
		return domain.SpecialRateTable{}, fmt.Errorf("special rates %s: %w", doc.ID, err)
	}
	return domain.SpecialRateTable{
		Courier:   doc.Data.Courier,
		Country:   doc.Data.Country,
		Bands:     bands,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

func (r *RateRepository) PutZone(ctx context.Context, mapping domain.ZoneMapping) (domain.ZoneMapping, error) {
	mapping.UpdatedAt = r.now()
	_, err := r.zones.Set(ctx, rateKey(mapping.Courier, mapping.Country), zoneDocument{
		Courier:   mapping.Courier,
		Country:   mapping.Country,
		Zone:      mapping.Zone,
		UpdatedAt: mapping.UpdatedAt,
	})
	return mapping, err
}

func (r *RateRepository) PutRateTable(ctx context.Context, table domain.RateTable) (domain.RateTable, error) {
	table.Bands = sortedBands(table.Bands)
	table.UpdatedAt = r.now()
	_, err := r.tables.Set(ctx, rateKey(table.Courier, table.Zone), rateTableDocument{
		Courier:   table.Courier,
		Zone:      table.Zone,
		Bands:     encodeBands(table.Bands),
		UpdatedAt: table.UpdatedAt,
	})
	return table, err
}

func (r *RateRepository) PutSpecialRates(ctx context.Context, table domain.SpecialRateTable) (domain.SpecialRateTable, error) {
	table.Bands = sortedBands(table.Bands)
	table.UpdatedAt = r.now()
	_, err := r.special.Set(ctx, rateKey(table.Courier, table.Country), specialRatesDocument{
		Courier:   table.Courier,
		Country:   table.Country,
		Bands:     encodeBands(table.Bands),
		UpdatedAt: table.UpdatedAt,
	})
	return table, err
}

func (r *RateRepository) DeleteSpecialRates(ctx context.Context, courier, country string) error {
	return r.special.Delete(ctx, rateKey(courier, country))
}

// rateKey builds a document id such as "fedex:ARE". Couriers are case-insensitive.
func rateKey(courier, other string) string {
	clean := func(s string) string { return strings.ReplaceAll(strings.TrimSpace(s), "/", "_") }
	return strings.ToLower(clean(courier)) + ":" + strings.ToUpper(clean(other))
}

func sortedBands(bands []domain.RateBand) []domain.RateBand {
	out := append([]domain.RateBand(nil), bands...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight.LessThan(out[j].Weight) })
	return out
}

func encodeBands(bands []domain.RateBand) []bandDocument {
	out := make([]bandDocument, 0, len(bands))
	for _, band := range bands {
		out = append(out, bandDocument{Weight: band.Weight.String(), Rate: band.Rate.String()})
	}
	return out
}

func decodeBands(docs []bandDocument) ([]domain.RateBand, error) {
	out := make([]domain.RateBand, 0, len(docs))
	for _, doc := range docs {
		weight, err := decimal.NewFromString(doc.Weight)
		if err != nil {
			return nil, fmt.Errorf("band weight %q: %w", doc.Weight, err)
		}
		rate, err := decimal.NewFromString(doc.Rate)
		if err != nil {
			return nil, fmt.Errorf("band rate %q: %w", doc.Rate, err)
		}
		out = append(out, domain.RateBand{Weight: weight, Rate: rate})
	}
	return sortedBands(out), nil
}
