// Package spend retrieves the external spend ledger by shelling out to a
// usage-reporting CLI and parsing its JSON output into per-period records.
package spend

import (
	"context"

	"costlens/internal/core"
)

// Provider returns spend records for a requested granularity.
// Implementations signal upstream absence with a SourceUnavailable error;
// callers degrade to savings-only reporting instead of aborting the run.
type Provider interface {
	FetchSpend(ctx context.Context, params QueryParams) ([]core.SpendPeriod, error)
}

// QueryParams narrows a spend fetch to one granularity and an optional
// date range. Dates use the canonical YYYY-MM-DD form; the CLI boundary
// converts them to whatever the upstream tool expects.
type QueryParams struct {
	Granularity core.Granularity
	StartDate   string
	EndDate     string
}
