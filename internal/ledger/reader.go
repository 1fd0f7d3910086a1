package ledger

import (
	"context"
	"time"

	"costlens/internal/core"
	"costlens/internal/period"
)

// WeekCalendar is the calendar convention of the ledger's weekly buckets.
// The ledger anchors weeks on Saturday, predating the ISO convention used
// on the spend side; period.Normalize reconciles the two.
const WeekCalendar = period.CalendarLegacy

// QueryParams specifies the query parameters for savings data retrieval.
type QueryParams struct {
	StartDate   time.Time        // Inclusive start (day precision)
	EndDate     time.Time        // Inclusive end (day precision)
	Granularity core.Granularity // daily, weekly, or monthly buckets
}

// Summary holds aggregated savings statistics over a time period.
type Summary struct {
	TotalCommands      int64 `json:"total_commands"`
	TotalRawBytes      int64 `json:"total_raw_bytes"`
	TotalFilteredBytes int64 `json:"total_filtered_bytes"`
	TotalTokensSaved   int64 `json:"total_tokens_saved"`
}

// Reader provides read access to recorded savings for report building.
type Reader interface {
	// SavingsByPeriod returns savings grouped into native-calendar buckets
	// for the given granularity: YYYY-MM-DD days, YYYY-MM months, and
	// Saturday-anchored week-start dates. The caller normalizes weekly keys
	// before joining against spend data.
	SavingsByPeriod(ctx context.Context, params QueryParams) ([]core.SavingsPeriod, error)

	// Summary returns aggregated savings statistics for the given date range.
	// If both StartDate and EndDate are zero, returns all-time statistics.
	Summary(ctx context.Context, params QueryParams) (*Summary, error)
}
