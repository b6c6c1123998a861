package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/repositories"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps configures the readiness report.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// Disabled lists integrations turned off by configuration. They appear in the report
	// without affecting its status.
	Disabled []string
}

type systemService struct {
	probes   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	disabled []string
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing the readiness endpoint.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		probes: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	for _, name := range deps.Disabled {
		if name = strings.TrimSpace(name); name != "" {
			svc.disabled = append(svc.disabled, name)
		}
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (domain.HealthReport, error) {
	report, err := s.probes.Collect(ctx)
	if err != nil {
		return domain.HealthReport{}, err
	}
	now := s.now()

	if report.Checks == nil {
		report.Checks = make(map[string]domain.HealthCheck, len(s.disabled))
	}
	for _, name := range s.disabled {
		if _, probed := report.Checks[name]; !probed {
			report.Checks[name] = domain.HealthCheck{Status: domain.HealthStatusDisabled, CheckedAt: now}
		}
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.CommitSHA) == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = overallStatus(report.Checks)
	}
	return report, nil
}

// overallStatus is the worst status among checks. Disabled checks are ignored and
// unrecognised statuses count as degraded.
func overallStatus(checks map[string]domain.HealthCheck) string {
	worst := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, domain.HealthStatusDisabled, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			worst = domain.HealthStatusDegraded
		}
	}
	return worst
}
