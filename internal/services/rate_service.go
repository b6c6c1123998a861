package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/repositories"
)

// ErrRateInvalidInput indicates a malformed rate lookup or rate table write.
var ErrRateInvalidInput = errors.New("rate: invalid input")

const defaultBenchmarkCountry = "USA"

var halfKilogram = decimal.RequireFromString("0.5")

// RateServiceDeps wires the rate resolver.
type RateServiceDeps struct {
	Rates            repositories.RateRepository
	Carriers         []string
	BenchmarkCountry string
}

type rateService struct {
	rates     repositories.RateRepository
	carriers  []string
	benchmark string
}

// NewRateService constructs a RateService backed by the rate repository.
func NewRateService(deps RateServiceDeps) (RateService, error) {
	if deps.Rates == nil {
		return nil, errors.New("rate service: rate repository is required")
	}
	carriers := make([]string, 0, len(deps.Carriers))
	for _, carrier := range deps.Carriers {
		if trimmed := strings.TrimSpace(carrier); trimmed != "" {
			carriers = append(carriers, trimmed)
		}
	}
	benchmark := normalizeCountry(deps.BenchmarkCountry)
	if benchmark == "" {
		benchmark = defaultBenchmarkCountry
	}
	return &rateService{
		rates:     deps.Rates,
		carriers:  carriers,
		benchmark: benchmark,
	}, nil
}

func (s *rateService) ResolveRate(ctx context.Context, courier, country string, weight decimal.Decimal) (Rate, error) {
	courier = strings.TrimSpace(courier)
	country = normalizeCountry(country)
	if courier == "" || country == "" {
		return domain.NoService, fmt.Errorf("%w: courier and country are required", ErrRateInvalidInput)
	}
	if !weight.IsPositive() {
		return domain.NoService, fmt.Errorf("%w: weight must be greater than zero", ErrRateInvalidInput)
	}
	return s.resolve(ctx, courier, country, domain.RoundWeight(weight))
}

func (s *rateService) resolve(ctx context.Context, courier, country string, weight decimal.Decimal) (Rate, error) {
	special, err := s.rates.SpecialRates(ctx, courier, country)
	switch {
	case err == nil && len(special.Bands) > 0:
		return domain.Lookup(special.Bands, weight), nil
	case err != nil && !isRepoNotFound(err):
		return domain.NoService, fmt.Errorf("rate: load special rates: %w", err)
	}

	zone, err := s.rates.Zone(ctx, courier, country)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.NoService, nil
		}
		return domain.NoService, fmt.Errorf("rate: load zone: %w", err)
	}
	if strings.TrimSpace(zone.Zone) == "" {
		return domain.NoService, nil
	}

	table, err := s.rates.RateTable(ctx, courier, zone.Zone)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.NoService, nil
		}
		return domain.NoService, fmt.Errorf("rate: load rate table: %w", err)
	}
	return domain.Lookup(table.Bands, weight), nil
}

func (s *rateService) BestCourier(ctx context.Context, country string, weight decimal.Decimal, carriers []string) (CourierQuote, error) {
	country = normalizeCountry(country)
	if country == "" {
		return CourierQuote{}, fmt.Errorf("%w: country is required", ErrRateInvalidInput)
	}
	if !weight.IsPositive() {
		return CourierQuote{}, fmt.Errorf("%w: weight must be greater than zero", ErrRateInvalidInput)
	}
	if len(carriers) == 0 {
		carriers = s.carriers
	}
	if len(carriers) == 0 {
		return CourierQuote{}, fmt.Errorf("%w: no carriers configured", ErrRateInvalidInput)
	}

	rounded := domain.RoundWeight(weight)
	rates := make([]Rate, len(carriers))
	benchmarks := make([]Rate, len(carriers))

	g, gctx := errgroup.WithContext(ctx)
	for i, carrier := range carriers {
		i, carrier := i, carrier
		g.Go(func() error {
			rate, err := s.resolve(gctx, carrier, country, rounded)
			if err != nil {
				return err
			}
			rates[i] = rate
			return nil
		})
		g.Go(func() error {
			rate, err := s.resolve(gctx, carrier, s.benchmark, rounded)
			if err != nil {
				return err
			}
			benchmarks[i] = rate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CourierQuote{}, err
	}

	quote := CourierQuote{
		Country:       country,
		Weight:        rounded,
		Rates:         make([]domain.CarrierRate, 0, len(carriers)),
		CheapestRate:  domain.NoService,
		CheapestFinal: domain.NoService,
		Benchmark:     domain.NoService,
	}
	for i, carrier := range carriers {
		final := domain.FinalPrice(rates[i])
		quote.Rates = append(quote.Rates, domain.CarrierRate{Courier: carrier, Rate: rates[i], FinalPrice: final})
		if final.Less(quote.CheapestFinal) {
			quote.Cheapest = carrier
			quote.CheapestRate = rates[i]
			quote.CheapestFinal = final
		}
		if benchmarks[i].Less(quote.Benchmark) {
			quote.Benchmark = benchmarks[i]
		}
	}
	return quote, nil
}

func (s *rateService) PutZone(ctx context.Context, cmd PutZoneCommand) (domain.ZoneMapping, error) {
	courier := strings.TrimSpace(cmd.Courier)
	country := normalizeCountry(cmd.Country)
	zone := strings.TrimSpace(cmd.Zone)
	if courier == "" || country == "" || zone == "" {
		return domain.ZoneMapping{}, fmt.Errorf("%w: courier, country and zone are required", ErrRateInvalidInput)
	}
	return s.rates.PutZone(ctx, domain.ZoneMapping{Courier: courier, Country: country, Zone: zone})
}

func (s *rateService) PutRateTable(ctx context.Context, cmd PutRateTableCommand) (domain.RateTable, error) {
	courier := strings.TrimSpace(cmd.Courier)
	zone := strings.TrimSpace(cmd.Zone)
	if courier == "" || zone == "" {
		return domain.RateTable{}, fmt.Errorf("%w: courier and zone are required", ErrRateInvalidInput)
	}
	bands, err := normalizeBands(cmd.Bands)
	if err != nil {
		return domain.RateTable{}, err
	}
	return s.rates.PutRateTable(ctx, domain.RateTable{Courier: courier, Zone: zone, Bands: bands})
}

func (s *rateService) PutSpecialRates(ctx context.Context, cmd PutSpecialRatesCommand) (domain.SpecialRateTable, error) {
	courier := strings.TrimSpace(cmd.Courier)
	country := normalizeCountry(cmd.Country)
	if courier == "" || country == "" {
		return domain.SpecialRateTable{}, fmt.Errorf("%w: courier and country are required", ErrRateInvalidInput)
	}
	bands, err := normalizeBands(cmd.Bands)
	if err != nil {
		return domain.SpecialRateTable{}, err
	}
	return s.rates.PutSpecialRates(ctx, domain.SpecialRateTable{Courier: courier, Country: country, Bands: bands})
}

func (s *rateService) DeleteSpecialRates(ctx context.Context, courier, country string) error {
	courier = strings.TrimSpace(courier)
	country = normalizeCountry(country)
	if courier == "" || country == "" {
		return fmt.Errorf("%w: courier and country are required", ErrRateInvalidInput)
	}
	return s.rates.DeleteSpecialRates(ctx, courier, country)
}

// normalizeBands validates bands and sorts them by weight.
func normalizeBands(bands []RateBand) ([]RateBand, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("%w: at least one band is required", ErrRateInvalidInput)
	}
	seen := make(map[string]struct{}, len(bands))
	out := make([]RateBand, 0, len(bands))
	for _, band := range bands {
		if !band.Weight.IsPositive() || !band.Weight.Mod(halfKilogram).IsZero() {
			return nil, fmt.Errorf("%w: band weight %s must be a positive multiple of 0.5", ErrRateInvalidInput, band.Weight)
		}
		if band.Rate.IsNegative() {
			return nil, fmt.Errorf("%w: band rate %s must not be negative", ErrRateInvalidInput, band.Rate)
		}
		key := band.Weight.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate band weight %s", ErrRateInvalidInput, key)
		}
		seen[key] = struct{}{}
		out = append(out, band)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight.LessThan(out[j].Weight) })
	return out, nil
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}
