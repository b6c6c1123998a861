package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/brc-ops/backoffice/internal/domain"
	"github.com/brc-ops/backoffice/internal/platform/httpx"
	"github.com/brc-ops/backoffice/internal/services"
)

// HealthHandlers serves /healthz and /readyz.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService enables dependency probing on /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type livenessResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Timestamp   string `json:"timestamp"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Healthz answers 200 while the process is up; it never calls dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock().UTC()
	httpx.WriteJSON(w, http.StatusOK, livenessResponse{
		Status:      domain.HealthStatusOK,
		Uptime:      now.Sub(h.build.StartedAt).String(),
		Timestamp:   now.Format(time.RFC3339),
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
	})
}

type readinessResponse struct {
	domain.HealthReport
	// Details lists "name: detail" for every check that is neither ok nor disabled, by name.
	Details []string `json:"details"`
}

// Readyz probes dependencies. It answers 503 only when the report status is "error";
// a degraded report still takes traffic.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, readinessResponse{
			HealthReport: domain.HealthReport{Status: domain.HealthStatusOK, Checks: map[string]domain.HealthCheck{}},
			Details:      []string{},
		})
		return
	}
	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_unavailable", "unable to collect health report", http.StatusServiceUnavailable))
		return
	}

	details := []string{}
	for name, check := range report.Checks {
		if check.Status == domain.HealthStatusOK || check.Status == domain.HealthStatusDisabled {
			continue
		}
		detail := check.Detail
		if detail == "" {
			detail = check.Status
		}
		details = append(details, name+": "+detail)
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, readinessResponse{HealthReport: report, Details: details})
}
