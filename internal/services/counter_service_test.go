package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brc-ops/backoffice/internal/repositories"
)

type stubCounterRepository struct {
	mu             sync.Mutex
	nextFn         func(context.Context, string, int64) (int64, error)
	configureFn    func(context.Context, string, repositories.CounterConfig) error
	nextCalls      []counterCall
	configureCalls []configureCall
}

type counterCall struct {
	ID   string
	Step int64
}

type configureCall struct {
	ID  string
	Cfg repositories.CounterConfig
}

func (s *stubCounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	s.mu.Lock()
	s.nextCalls = append(s.nextCalls, counterCall{ID: counterID, Step: step})
	s.mu.Unlock()
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func (s *stubCounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	s.mu.Lock()
	s.configureCalls = append(s.configureCalls, configureCall{ID: counterID, Cfg: cfg})
	s.mu.Unlock()
	if s.configureFn != nil {
		return s.configureFn(ctx, counterID, cfg)
	}
	return nil
}

func TestCounterServiceCapsEachSeriesOnce(t *testing.T) {
	repo := &stubCounterRepository{}
	repo.nextFn = func(context.Context, string, int64) (int64, error) { return 3, nil }
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	svc, err := NewCounterService(CounterServiceDeps{
		Repository:  repo,
		MaxSequence: 9999,
		Clock:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.NextInvoiceNumber(ctx); err != nil {
			t.Fatalf("next invoice number: %v", err)
		}
	}
	now = time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	if _, err := svc.NextInvoiceNumber(ctx); err != nil {
		t.Fatalf("next invoice number: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.configureCalls) != 2 {
		t.Fatalf("expected one configure per series, got %d", len(repo.configureCalls))
	}
	if repo.configureCalls[0].ID != "invoices:BRC-2025" || repo.configureCalls[1].ID != "invoices:BRC-2026" {
		t.Fatalf("unexpected configured series %+v", repo.configureCalls)
	}
	if ceiling := repo.configureCalls[0].Cfg.Ceiling; ceiling == nil || *ceiling != 9999 {
		t.Fatalf("expected ceiling 9999, got %v", ceiling)
	}
	for _, call := range repo.nextCalls {
		if call.Step != 1 {
			t.Fatalf("expected step 1, got %d", call.Step)
		}
	}
}

func TestCounterServiceWithoutCeilingSkipsConfigure(t *testing.T) {
	repo := &stubCounterRepository{}
	repo.nextFn = func(context.Context, string, int64) (int64, error) { return 1, nil }
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	if _, err := svc.NextInvoiceNumber(context.Background()); err != nil {
		t.Fatalf("next invoice number: %v", err)
	}
	if len(repo.configureCalls) != 0 {
		t.Fatalf("expected no configure calls, got %d", len(repo.configureCalls))
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want error
	}{
		"exhausted": {err: repositories.ExhaustedCounter("invoices:BRC-2025", 9999), want: ErrCounterExhausted},
		"invalid":   {err: repositories.InvalidCounter("", "counter id is required"), want: ErrCounterInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubCounterRepository{}
			repo.nextFn = func(context.Context, string, int64) (int64, error) { return 0, tc.err }
			svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
			if err != nil {
				t.Fatalf("new counter service: %v", err)
			}
			if _, err := svc.NextInvoiceNumber(context.Background()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInvoiceSeries(t *testing.T) {
	series := InvoiceSeries{Prefix: "BRC", StartYear: 2099}
	if got := series.Label(); got != "99-00" {
		t.Fatalf("expected label 99-00, got %s", got)
	}
	if got := series.Number(12345); got != "BRC/99-00/12345" {
		t.Fatalf("expected unpadded overflow, got %s", got)
	}
	if got := series.CounterID(); got != "invoices:BRC-2099" {
		t.Fatalf("unexpected counter id %s", got)
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: &stubCounterRepository{}, InvoicePrefix: " exp ", FinancialYearStartMonth: time.January})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	if got := svc.Series(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != (InvoiceSeries{Prefix: "EXP", StartYear: 2025}) {
		t.Fatalf("unexpected series %+v", got)
	}
}

func TestCounterServiceNextInvoiceNumber(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		seq      int64
		prefix   string
		expected string
		counter  string
	}{
		{
			name:     "after financial year start",
			now:      time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC),
			seq:      42,
			expected: "BRC/25-26/0042",
			counter:  "invoices:BRC-2025",
		},
		{
			name:     "before financial year start",
			now:      time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
			seq:      7,
			prefix:   "exp",
			expected: "EXP/25-26/0007",
			counter:  "invoices:EXP-2025",
		},
		{
			name:     "first day of financial year",
			now:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			seq:      1,
			expected: "BRC/26-27/0001",
			counter:  "invoices:BRC-2026",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubCounterRepository{}
			repo.nextFn = func(context.Context, string, int64) (int64, error) {
				return tc.seq, nil
			}

			svc, err := NewCounterService(CounterServiceDeps{
				Repository:    repo,
				InvoicePrefix: tc.prefix,
				Clock:         func() time.Time { return tc.now },
			})
			if err != nil {
				t.Fatalf("new counter service: %v", err)
			}

			result, err := svc.NextInvoiceNumber(context.Background())
			if err != nil {
				t.Fatalf("next invoice number: %v", err)
			}
			if result != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, result)
			}

			repo.mu.Lock()
			defer repo.mu.Unlock()
			if len(repo.nextCalls) != 1 {
				t.Fatalf("expected one next call, got %d", len(repo.nextCalls))
			}
			if repo.nextCalls[0].ID != tc.counter {
				t.Fatalf("expected counter id %s, got %s", tc.counter, repo.nextCalls[0].ID)
			}
		})
	}
}

func TestCounterServiceInvoiceNumberFailureIsReturned(t *testing.T) {
	repo := &stubCounterRepository{}
	boom := errors.New("transaction aborted")
	repo.nextFn = func(context.Context, string, int64) (int64, error) {
		return 0, boom
	}

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	if _, err := svc.NextInvoiceNumber(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestFinancialYear(t *testing.T) {
	if got := FinancialYear(time.Date(2025, 3, 31, 23, 0, 0, 0, time.UTC), time.April); got != 2024 {
		t.Fatalf("expected 2024, got %d", got)
	}
	if got := FinancialYear(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), time.April); got != 2025 {
		t.Fatalf("expected 2025, got %d", got)
	}
	if got := FinancialYear(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.January); got != 2025 {
		t.Fatalf("expected 2025, got %d", got)
	}
}
