package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brc-ops/backoffice/internal/repositories"
)

var (
	// ErrCounterInvalidInput is returned when the counter store rejects the series id or step.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted is returned when a series reached its maximum.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// CounterServiceDeps configures invoice numbering.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
	// InvoicePrefix leads every number. Defaults to "BRC".
	InvoicePrefix string
	// FinancialYearStartMonth is when a new series begins. Defaults to April.
	FinancialYearStartMonth time.Month
	// MaxSequence caps each series. Zero leaves series unbounded.
	MaxSequence int64
}

type counterService struct {
	repo    repositories.CounterRepository
	clock   func() time.Time
	prefix  string
	fyStart time.Month
	ceiling int64

	mu     sync.Mutex
	capped map[string]struct{}
}

// NewCounterService constructs the invoice numbering service.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	svc := &counterService{
		repo:    deps.Repository,
		clock:   deps.Clock,
		prefix:  strings.ToUpper(strings.TrimSpace(deps.InvoicePrefix)),
		fyStart: deps.FinancialYearStartMonth,
		ceiling: deps.MaxSequence,
		capped:  make(map[string]struct{}),
	}
	if svc.clock == nil {
		svc.clock = time.Now
	}
	if svc.prefix == "" {
		svc.prefix = "BRC"
	}
	if svc.fyStart < time.January || svc.fyStart > time.December {
		svc.fyStart = time.April
	}
	if svc.ceiling < 0 {
		svc.ceiling = 0
	}
	return svc, nil
}

func (s *counterService) Series(at time.Time) InvoiceSeries {
	return InvoiceSeries{Prefix: s.prefix, StartYear: FinancialYear(at.UTC(), s.fyStart)}
}

// NextInvoiceNumber takes the next value of the current financial year's series.
func (s *counterService) NextInvoiceNumber(ctx context.Context) (string, error) {
	series := s.Series(s.clock())
	id := series.CounterID()
	if err := s.applyCeiling(ctx, id); err != nil {
		return "", err
	}
	seq, err := s.repo.Next(ctx, id, 1)
	if err != nil {
		return "", counterFailure(err)
	}
	return series.Number(seq), nil
}

// applyCeiling stores MaxSequence on a series the first time this process uses it.
func (s *counterService) applyCeiling(ctx context.Context, id string) error {
	if s.ceiling == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capped[id]; ok {
		return nil
	}
	ceiling := s.ceiling
	if err := s.repo.Configure(ctx, id, repositories.CounterConfig{Step: 1, Ceiling: &ceiling}); err != nil {
		return counterFailure(err)
	}
	s.capped[id] = struct{}{}
	return nil
}

func counterFailure(err error) error {
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) {
		return err
	}
	if counterErr.Failure == repositories.CounterExhausted {
		return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Detail)
	}
	return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Detail)
}

// FinancialYear returns the calendar year in which the financial year containing now began.
func FinancialYear(now time.Time, startMonth time.Month) int {
	if now.Month() < startMonth {
		return now.Year() - 1
	}
	return now.Year()
}
