// Package admin provides the HTTP handlers for the costlens API.
package admin

import (
	"context"

	"costlens/internal/ledger"
	"costlens/internal/report"
)

// ReportBuilder assembles economics reports from spend and savings data.
// *report.Builder satisfies this interface.
type ReportBuilder interface {
	Build(ctx context.Context, params report.Params) (*report.Report, error)
}

// Handler serves the API endpoints.
type Handler struct {
	builder  ReportBuilder
	reader   ledger.Reader
	recorder ledger.RecorderInterface
}

// NewHandler creates a new Handler. A nil reader or recorder marks the
// savings ledger as disabled; the affected endpoints degrade accordingly.
func NewHandler(builder ReportBuilder, reader ledger.Reader, recorder ledger.RecorderInterface) *Handler {
	return &Handler{
		builder:  builder,
		reader:   reader,
		recorder: recorder,
	}
}
