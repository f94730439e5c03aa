package domain

import "time"

// Cart is the subset of checkout cart state owned by the fee pipeline.
type Cart struct {
	ID        string
	Currency  string
	Fees      FeeSet
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HandlingFeeSettings stores the administrator-configured flat handling fee.
// Amount is expressed in the minor units of Currency.
type HandlingFeeSettings struct {
	Amount    int64
	Currency  string
	UpdatedBy string
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
