package admin

import (
	"time"

	"costlens/internal/core"
)

// SummaryResponse is the JSON response for GET /v1/reports/summary.
type SummaryResponse struct {
	Granularity    core.Granularity      `json:"granularity"`
	GeneratedAt    time.Time             `json:"generated_at"`
	SpendAvailable bool                  `json:"spend_available"`
	SpendError     string                `json:"spend_error,omitempty"`
	Summary        core.EconomicsSummary `json:"summary"`
}

// IngestResponse is the JSON response for POST /v1/events.
type IngestResponse struct {
	// Accepted is the number of events queued for recording.
	Accepted int `json:"accepted"`

	// Estimated is how many of those had their token savings estimated
	// from byte counts because the caller omitted a figure.
	Estimated int `json:"estimated"`
}
