// Package report assembles the external spend source and the internal savings
// ledger into per-period economics reports and renders them as text, JSON, or
// CSV. Renderers consume the built report read-only; absent optional values
// keep a distinct placeholder in every format and are never rendered as zero.
package report

import (
	"fmt"
	"io"
	"time"

	"costlens/internal/core"
)

// Params selects the periods a report covers. Zero dates mean unbounded.
type Params struct {
	Granularity core.Granularity
	StartDate   time.Time
	EndDate     time.Time
}

// Report is one built report for a single granularity. SpendAvailable is
// false when the spend source could not be reached; the report then carries
// savings-only records and SpendError names the reason.
type Report struct {
	Granularity    core.Granularity       `json:"granularity"`
	GeneratedAt    time.Time              `json:"generated_at"`
	SpendAvailable bool                   `json:"spend_available"`
	SpendError     string                 `json:"spend_error,omitempty"`
	SkippedRecords int                    `json:"skipped_records"`
	Periods        []core.PeriodEconomics `json:"periods"`
	Summary        core.EconomicsSummary  `json:"summary"`
}

// Format identifies an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// Renderer writes built reports to an output stream.
type Renderer interface {
	// Render writes a single report.
	Render(w io.Writer, rep *Report) error

	// RenderAll writes several reports (one per granularity) as one document.
	RenderAll(w io.Writer, reps []*Report) error
}

// NewRenderer returns the renderer for a format.
func NewRenderer(format Format) (Renderer, error) {
	switch format {
	case FormatTable, "":
		return &TextRenderer{}, nil
	case FormatJSON:
		return &JSONRenderer{}, nil
	case FormatCSV:
		return &CSVRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}
