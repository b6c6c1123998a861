//go:build integration

package firestore

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brc-ops/backoffice/internal/domain"
	pconfig "github.com/brc-ops/backoffice/internal/platform/config"
	pfirestore "github.com/brc-ops/backoffice/internal/platform/firestore"
	"github.com/brc-ops/backoffice/internal/repositories"
)

func emulatorProvider(t *testing.T, project string) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: project, EmulatorHost: host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestCounterRepositoryIntegration(t *testing.T) {
	provider := emulatorProvider(t, "counter-test")
	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 12
	counterID := "invoices:BRC-" + time.Now().Format("150405.000")
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, counterID, 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if val != int64(i+1) {
			t.Fatalf("expected gap-free sequence, got %v", results)
		}
	}

	max, start := int64(2), int64(0)
	bounded := counterID + "-bounded"
	if err := repo.Configure(ctx, bounded, repositories.CounterConfig{Step: 1, Ceiling: &max, Start: &start}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	for i := int64(1); i <= max; i++ {
		if _, err := repo.Next(ctx, bounded, 0); err != nil {
			t.Fatalf("next bounded %d: %v", i, err)
		}
	}
	_, err = repo.Next(ctx, bounded, 0)
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) || counterErr.Failure != repositories.CounterExhausted {
		t.Fatalf("expected exhausted counter error, got %v", err)
	}
}

func TestRateRepositoryIntegration(t *testing.T) {
	provider := emulatorProvider(t, "rates-test")
	repo, err := NewRateRepository(provider)
	if err != nil {
		t.Fatalf("new rate repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := repo.Zone(ctx, "FedEx", "AUS"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found zone, got %v", err)
	}

	if _, err := repo.PutZone(ctx, domain.ZoneMapping{Courier: "FedEx", Country: "AUS", Zone: "G"}); err != nil {
		t.Fatalf("put zone: %v", err)
	}
	zone, err := repo.Zone(ctx, "fedex", "aus")
	if err != nil || zone.Zone != "G" {
		t.Fatalf("expected zone G, got %+v (%v)", zone, err)
	}

	bands := []domain.RateBand{
		{Weight: decimal.RequireFromString("1.0"), Rate: decimal.RequireFromString("1450.50")},
		{Weight: decimal.RequireFromString("0.5"), Rate: decimal.RequireFromString("980.10")},
	}
	if _, err := repo.PutRateTable(ctx, domain.RateTable{Courier: "FedEx", Zone: "G", Bands: bands}); err != nil {
		t.Fatalf("put table: %v", err)
	}
	table, err := repo.RateTable(ctx, "FedEx", "G")
	if err != nil {
		t.Fatalf("rate table: %v", err)
	}
	if len(table.Bands) != 2 || !table.Bands[0].Weight.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected sorted bands, got %+v", table.Bands)
	}
	if !table.Bands[1].Rate.Equal(decimal.RequireFromString("1450.50")) {
		t.Fatalf("expected exact decimal round trip, got %s", table.Bands[1].Rate)
	}

	if _, err := repo.PutSpecialRates(ctx, domain.SpecialRateTable{Courier: "Aramex", Country: "ARE", Bands: bands}); err != nil {
		t.Fatalf("put special: %v", err)
	}
	if _, err := repo.SpecialRates(ctx, "Aramex", "ARE"); err != nil {
		t.Fatalf("special rates: %v", err)
	}
	if err := repo.DeleteSpecialRates(ctx, "Aramex", "ARE"); err != nil {
		t.Fatalf("delete special: %v", err)
	}
	if _, err := repo.SpecialRates(ctx, "Aramex", "ARE"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected special rates removed, got %v", err)
	}
}

func TestSKUMapRepositoryIntegration(t *testing.T) {
	provider := emulatorProvider(t, "skumaps-test")
	repo, err := NewSKUMapRepository(provider)
	if err != nil {
		t.Fatalf("new sku map repository: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, sku := range []string{"BRC-KIT-002", "BRC-KIT-001"} {
		_, err := repo.Put(ctx, domain.SKUMap{SKU: sku, Components: []domain.SKUComponent{{SKU: "FP-1", Quantity: 2}}})
		if err != nil {
			t.Fatalf("put %s: %v", sku, err)
		}
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) < 2 || list[0].SKU > list[1].SKU {
		t.Fatalf("expected ordered list, got %+v", list)
	}
	got, err := repo.Get(ctx, "BRC-KIT-001")
	if err != nil || len(got.Components) != 1 || got.Components[0].Quantity != 2 {
		t.Fatalf("unexpected mapping %+v (%v)", got, err)
	}
	if err := repo.Delete(ctx, "BRC-KIT-001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "BRC-KIT-001"); !pfirestore.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
