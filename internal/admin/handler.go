package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"costlens/internal/core"
	"costlens/internal/ledger"
	"costlens/internal/report"
)

const (
	dateLayout = "2006-01-02"

	defaultReportDays = 30
	maxReportDays     = 365
)

// parseReportParams extracts report parameters from the query string.
//
// Explicit start_date/end_date take precedence; otherwise days (default 30)
// counts back from today. Invalid values are rejected with a validation
// error rather than silently corrected.
func parseReportParams(c *echo.Context) (report.Params, error) {
	params := report.Params{Granularity: core.GranularityDaily}

	if interval := c.QueryParam("interval"); interval != "" {
		g := core.Granularity(interval)
		if !g.Valid() {
			return params, core.NewValidationError(
				fmt.Sprintf("invalid interval %q, expected daily, weekly or monthly", interval), nil)
		}
		params.Granularity = g
	}

	now := time.Now().UTC()
	startStr := c.QueryParam("start_date")
	endStr := c.QueryParam("end_date")

	if startStr != "" || endStr != "" {
		if startStr != "" {
			start, err := time.Parse(dateLayout, startStr)
			if err != nil {
				return params, core.NewValidationError(
					fmt.Sprintf("invalid start_date %q, expected YYYY-MM-DD", startStr), err)
			}
			params.StartDate = start
		}
		if endStr != "" {
			end, err := time.Parse(dateLayout, endStr)
			if err != nil {
				return params, core.NewValidationError(
					fmt.Sprintf("invalid end_date %q, expected YYYY-MM-DD", endStr), err)
			}
			params.EndDate = end
		}

		// Fill the missing side of a half-specified range
		if params.EndDate.IsZero() {
			params.EndDate = now
		}
		if params.StartDate.IsZero() {
			params.StartDate = params.EndDate.AddDate(0, 0, -(defaultReportDays - 1))
		}
		if params.EndDate.Before(params.StartDate) {
			return params, core.NewValidationError("start_date is after end_date", nil)
		}
		return params, nil
	}

	days := defaultReportDays
	if daysStr := c.QueryParam("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 || parsed > maxReportDays {
			return params, core.NewValidationError(
				fmt.Sprintf("invalid days %q, expected a number between 1 and %d", daysStr, maxReportDays), err)
		}
		days = parsed
	}
	params.EndDate = now
	params.StartDate = now.AddDate(0, 0, -(days - 1))
	return params, nil
}

// Economics handles GET /v1/reports/economics.
func (h *Handler) Economics(c *echo.Context) error {
	params, err := parseReportParams(c)
	if err != nil {
		return handleError(c, err)
	}

	if h.builder == nil {
		return c.JSON(http.StatusOK, &report.Report{
			Granularity: params.Granularity,
			GeneratedAt: time.Now().UTC(),
		})
	}

	rep, err := h.builder.Build(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// EconomicsSummary handles GET /v1/reports/summary.
func (h *Handler) EconomicsSummary(c *echo.Context) error {
	params, err := parseReportParams(c)
	if err != nil {
		return handleError(c, err)
	}

	if h.builder == nil {
		return c.JSON(http.StatusOK, &SummaryResponse{
			Granularity: params.Granularity,
			GeneratedAt: time.Now().UTC(),
		})
	}

	rep, err := h.builder.Build(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, &SummaryResponse{
		Granularity:    rep.Granularity,
		GeneratedAt:    rep.GeneratedAt,
		SpendAvailable: rep.SpendAvailable,
		SpendError:     rep.SpendError,
		Summary:        rep.Summary,
	})
}

// LedgerSummary handles GET /v1/ledger/summary. Without date parameters it
// returns all-time totals.
func (h *Handler) LedgerSummary(c *echo.Context) error {
	if h.reader == nil {
		return c.JSON(http.StatusOK, &ledger.Summary{})
	}

	var params ledger.QueryParams
	if c.QueryParam("days") != "" || c.QueryParam("start_date") != "" || c.QueryParam("end_date") != "" {
		reportParams, err := parseReportParams(c)
		if err != nil {
			return handleError(c, err)
		}
		params.StartDate = reportParams.StartDate
		params.EndDate = reportParams.EndDate
	}

	summary, err := h.reader.Summary(c.Request().Context(), params)
	if err != nil {
		return handleError(c, core.NewStorageError("ledger summary", "failed to read savings ledger", err))
	}
	return c.JSON(http.StatusOK, summary)
}

// IngestEvents handles POST /v1/events. The body is a JSON array of savings
// events; missing IDs, timestamps and token estimates are filled in before
// the events are queued for recording.
func (h *Handler) IngestEvents(c *echo.Context) error {
	if h.recorder == nil {
		return handleError(c, core.NewStorageError("ingest", "savings ledger is disabled", nil))
	}

	var events []ledger.Event
	if err := json.NewDecoder(c.Request().Body).Decode(&events); err != nil {
		return handleError(c, core.NewValidationError("invalid request body: expected a JSON array of events", err))
	}

	now := time.Now().UTC()
	estimated := 0
	for i := range events {
		ev := &events[i]
		if ev.Command == "" {
			return handleError(c, core.NewValidationError(
				fmt.Sprintf("event %d: missing command", i), nil))
		}
		if ev.RawBytes < 0 || ev.FilteredBytes < 0 || ev.TokensSaved < 0 {
			return handleError(c, core.NewValidationError(
				fmt.Sprintf("event %d: negative counters", i), nil))
		}

		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		if ev.TokensSaved == 0 {
			if est := ledger.EstimateTokensSaved(ev.RawBytes, ev.FilteredBytes); est > 0 {
				ev.TokensSaved = est
				estimated++
			}
		}
	}

	for i := range events {
		h.recorder.Record(&events[i])
	}

	return c.JSON(http.StatusAccepted, &IngestResponse{
		Accepted:  len(events),
		Estimated: estimated,
	})
}

// handleError converts pipeline errors to HTTP responses
func handleError(c *echo.Context, err error) error {
	var reportErr *core.ReportError
	if errors.As(err, &reportErr) {
		return c.JSON(reportErr.HTTPStatusCode(), reportErr.ToJSON())
	}

	// Unknown error type, return 500
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
