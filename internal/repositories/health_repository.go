package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/brc-ops/backoffice/internal/domain"
)

// DependencyCheck probes one dependency for /readyz.
type DependencyCheck struct {
	Name string
	// Timeout bounds the probe. Zero uses the repository default of 1.5s.
	Timeout time.Duration
	// Critical marks dependencies the service cannot work without. Their failure makes the
	// report "error"; other failures make it "degraded".
	Critical bool
	Check    func(context.Context) error
}

// DependencyHealthOption customises NewDependencyHealthRepository.
type DependencyHealthOption func(*probeSet)

// WithDependencyTimeout changes the default probe timeout.
func WithDependencyTimeout(timeout time.Duration) DependencyHealthOption {
	return func(p *probeSet) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithDependencyClock replaces time.Now.
func WithDependencyClock(clock func() time.Time) DependencyHealthOption {
	return func(p *probeSet) {
		if clock != nil {
			p.now = clock
		}
	}
}

type probeSet struct {
	checks  []DependencyCheck
	timeout time.Duration
	now     func() time.Time
}

// NewDependencyHealthRepository returns a HealthRepository that runs checks in parallel on
// every Collect. Names must be unique.
func NewDependencyHealthRepository(checks []DependencyCheck, opts ...DependencyHealthOption) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: no dependency checks")
	}
	seen := make(map[string]bool, len(checks))
	for i, check := range checks {
		name := strings.TrimSpace(check.Name)
		switch {
		case name == "":
			return nil, fmt.Errorf("health repository: check %d has no name", i)
		case seen[name]:
			return nil, fmt.Errorf("health repository: duplicate check %s", name)
		case check.Check == nil:
			return nil, fmt.Errorf("health repository: check %s has no probe", name)
		}
		seen[name] = true
	}

	p := &probeSet{
		checks:  append([]DependencyCheck(nil), checks...),
		timeout: 1500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Collect never returns an error; probe failures are reported inside the report.
func (p *probeSet) Collect(ctx context.Context) (domain.HealthReport, error) {
	results := make([]domain.HealthCheck, len(p.checks))
	var wg sync.WaitGroup
	for i := range p.checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.run(ctx, p.checks[i])
		}(i)
	}
	wg.Wait()

	report := domain.HealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.HealthCheck, len(results)),
		GeneratedAt: p.now(),
	}
	for i, result := range results {
		check := p.checks[i]
		report.Checks[strings.TrimSpace(check.Name)] = result
		if result.Status == domain.HealthStatusOK {
			continue
		}
		if check.Critical {
			report.Status = domain.HealthStatusError
		} else if report.Status == domain.HealthStatusOK {
			report.Status = domain.HealthStatusDegraded
		}
	}
	return report, nil
}

func (p *probeSet) run(ctx context.Context, check DependencyCheck) domain.HealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := p.now()
	err := check.Check(ctx)
	if err == nil {
		err = ctx.Err()
	}
	finished := p.now()

	result := domain.HealthCheck{Latency: finished.Sub(started), CheckedAt: finished}
	if err == nil {
		result.Status = domain.HealthStatusOK
		return result
	}
	result.Status = domain.HealthStatusDegraded
	if check.Critical {
		result.Status = domain.HealthStatusError
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Detail = "timeout after " + timeout.String()
	case errors.Is(err, context.Canceled):
		result.Detail = "cancelled"
	default:
		result.Detail = err.Error()
	}
	return result
}
