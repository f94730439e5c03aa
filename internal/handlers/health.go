package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/handling-fee/internal/domain"
	"github.com/hanko-field/handling-fee/internal/platform/httpx"
	"github.com/hanko-field/handling-fee/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build  services.BuildInfo
	system services.SystemService
	now    func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthSystemService enables dependency checks on /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) { h.system = svc }
}

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.now = clock
		}
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

// Healthz reports that the process is serving. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	payload := map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

type readinessCheck struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readinessResponse struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version,omitempty"`
	CommitSHA   string                    `json:"commitSha,omitempty"`
	Environment string                    `json:"environment,omitempty"`
	Uptime      string                    `json:"uptime,omitempty"`
	GeneratedAt string                    `json:"generatedAt"`
	Checks      map[string]readinessCheck `json:"checks"`
	Details     []string                  `json:"details,omitempty"`
}

// Readyz runs dependency checks and answers 503 unless every check is ok.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteJSON(w, http.StatusOK, readinessResponse{
			Status:      domain.HealthStatusOK,
			GeneratedAt: h.now().UTC().Format(time.RFC3339),
			Checks:      map[string]readinessCheck{},
		})
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}

	generated := report.GeneratedAt
	if generated.IsZero() {
		generated = h.now()
	}
	resp := readinessResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		GeneratedAt: generated.UTC().Format(time.RFC3339),
		Checks:      make(map[string]readinessCheck, len(report.Checks)),
	}
	if report.Uptime > 0 {
		resp.Uptime = report.Uptime.String()
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		entry := readinessCheck{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
		}
		resp.Checks[name] = entry
		if check.Status != domain.HealthStatusOK {
			reason := strings.TrimSpace(check.Error)
			if reason == "" {
				reason = strings.TrimSpace(check.Detail)
			}
			if reason == "" {
				reason = check.Status
			}
			resp.Details = append(resp.Details, name+": "+reason)
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}
