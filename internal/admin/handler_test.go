package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"costlens/internal/core"
	"costlens/internal/ledger"
	"costlens/internal/report"
)

// mockBuilder implements ReportBuilder for testing.
type mockBuilder struct {
	report     *report.Report
	err        error
	calls      int
	lastParams report.Params
}

func (m *mockBuilder) Build(_ context.Context, params report.Params) (*report.Report, error) {
	m.calls++
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

// mockReader implements ledger.Reader for testing.
type mockReader struct {
	summary    *ledger.Summary
	err        error
	lastParams ledger.QueryParams
}

func (m *mockReader) SavingsByPeriod(_ context.Context, _ ledger.QueryParams) ([]core.SavingsPeriod, error) {
	return nil, nil
}

func (m *mockReader) Summary(_ context.Context, params ledger.QueryParams) (*ledger.Summary, error) {
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return m.summary, nil
}

// mockRecorder implements ledger.RecorderInterface for testing.
type mockRecorder struct {
	events []*ledger.Event
}

func (m *mockRecorder) Record(ev *ledger.Event) {
	m.events = append(m.events, ev)
}

func (m *mockRecorder) Config() ledger.Config {
	return ledger.DefaultConfig()
}

func (m *mockRecorder) Close() error { return nil }

func newHandlerContext(method, target string, body io.Reader) (*echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func sampleReport() *report.Report {
	spend := &core.SpendPeriod{PeriodKey: "2025-12-01", Cost: 10, OutputTokens: 2000, TotalTokens: 2000}
	return &report.Report{
		Granularity:    core.GranularityDaily,
		GeneratedAt:    time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC),
		SpendAvailable: true,
		Periods: []core.PeriodEconomics{
			{PeriodKey: "2025-12-01", Spend: spend},
		},
		Summary: core.EconomicsSummary{Periods: 1, TotalCost: 10, TotalBlendedTokens: 2000},
	}
}

// --- Economics handler tests ---

func TestEconomics_Success(t *testing.T) {
	builder := &mockBuilder{report: sampleReport()}
	h := NewHandler(builder, nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/reports/economics?interval=weekly&days=7", nil)

	if err := h.Economics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if builder.lastParams.Granularity != core.GranularityWeekly {
		t.Errorf("expected weekly granularity, got %s", builder.lastParams.Granularity)
	}
	if span := builder.lastParams.EndDate.Sub(builder.lastParams.StartDate); span != 6*24*time.Hour {
		t.Errorf("expected a 7 day window, got span %v", span)
	}

	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(rep.Periods) != 1 || rep.Periods[0].PeriodKey != "2025-12-01" {
		t.Errorf("unexpected periods: %+v", rep.Periods)
	}
}

func TestEconomics_DefaultsToDaily(t *testing.T) {
	builder := &mockBuilder{report: sampleReport()}
	h := NewHandler(builder, nil, nil)
	c, _ := newHandlerContext(http.MethodGet, "/v1/reports/economics", nil)

	if err := h.Economics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if builder.lastParams.Granularity != core.GranularityDaily {
		t.Errorf("expected daily granularity, got %s", builder.lastParams.Granularity)
	}
	if span := builder.lastParams.EndDate.Sub(builder.lastParams.StartDate); span != 29*24*time.Hour {
		t.Errorf("expected the default 30 day window, got span %v", span)
	}
}

func TestEconomics_InvalidParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"unknown interval", "interval=hourly"},
		{"days zero", "days=0"},
		{"days negative", "days=-5"},
		{"days above maximum", "days=400"},
		{"days not a number", "days=abc"},
		{"malformed start date", "start_date=12/01/2025"},
		{"malformed end date", "end_date=2025-13-40"},
		{"inverted range", "start_date=2025-12-31&end_date=2025-12-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := &mockBuilder{report: sampleReport()}
			h := NewHandler(builder, nil, nil)
			c, rec := newHandlerContext(http.MethodGet, "/v1/reports/economics?"+tt.query, nil)

			if err := h.Economics(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), "validation_error") {
				t.Errorf("expected validation_error body, got %s", rec.Body.String())
			}
			if builder.calls != 0 {
				t.Errorf("expected builder not to be called, got %d calls", builder.calls)
			}
		})
	}
}

func TestEconomics_ExplicitDateRange(t *testing.T) {
	builder := &mockBuilder{report: sampleReport()}
	h := NewHandler(builder, nil, nil)
	c, rec := newHandlerContext(http.MethodGet,
		"/v1/reports/economics?start_date=2025-12-01&end_date=2025-12-31&days=7", nil)

	if err := h.Economics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	wantStart := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	if !builder.lastParams.StartDate.Equal(wantStart) || !builder.lastParams.EndDate.Equal(wantEnd) {
		t.Errorf("explicit dates not honored: %+v", builder.lastParams)
	}
}

func TestEconomics_FillsMissingStartDate(t *testing.T) {
	builder := &mockBuilder{report: sampleReport()}
	h := NewHandler(builder, nil, nil)
	c, _ := newHandlerContext(http.MethodGet, "/v1/reports/economics?end_date=2025-12-31", nil)

	if err := h.Economics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStart := time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC)
	if !builder.lastParams.StartDate.Equal(wantStart) {
		t.Errorf("expected start filled to %s, got %s", wantStart, builder.lastParams.StartDate)
	}
}

func TestEconomics_BuilderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "storage failure",
			err:        core.NewStorageError("savings read", "failed to read savings ledger", errors.New("locked")),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "storage_error",
		},
		{
			name:       "unknown failure",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&mockBuilder{err: tt.err}, nil, nil)
			c, rec := newHandlerContext(http.MethodGet, "/v1/reports/economics", nil)

			if err := h.Economics(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantType) {
				t.Errorf("expected %s in body, got %s", tt.wantType, rec.Body.String())
			}
		})
	}
}

func TestEconomics_NilBuilder(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/reports/economics", nil)

	if err := h.Economics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rep report.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(rep.Periods) != 0 {
		t.Errorf("expected empty report, got %+v", rep)
	}
}

// --- EconomicsSummary handler tests ---

func TestEconomicsSummary_Success(t *testing.T) {
	rep := sampleReport()
	rep.SpendAvailable = false
	rep.SpendError = "ccusage: binary not found"
	h := NewHandler(&mockBuilder{report: rep}, nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/reports/summary?days=90", nil)

	if err := h.EconomicsSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.SpendAvailable {
		t.Error("expected spend_available false")
	}
	if resp.SpendError != "ccusage: binary not found" {
		t.Errorf("unexpected spend_error: %q", resp.SpendError)
	}
	if resp.Summary.Periods != 1 || resp.Summary.TotalCost != 10 {
		t.Errorf("unexpected summary: %+v", resp.Summary)
	}
	if strings.Contains(rec.Body.String(), `"periods":[`) {
		t.Error("summary response must not embed the period list")
	}
}

func TestEconomicsSummary_InvalidInterval(t *testing.T) {
	h := NewHandler(&mockBuilder{report: sampleReport()}, nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/reports/summary?interval=yearly", nil)

	if err := h.EconomicsSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- LedgerSummary handler tests ---

func TestLedgerSummary_NilReader(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/ledger/summary", nil)

	if err := h.LedgerSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary ledger.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if summary.TotalCommands != 0 || summary.TotalTokensSaved != 0 {
		t.Errorf("expected zeroed summary, got %+v", summary)
	}
}

func TestLedgerSummary_AllTimeByDefault(t *testing.T) {
	reader := &mockReader{summary: &ledger.Summary{
		TotalCommands:      42,
		TotalRawBytes:      400000,
		TotalFilteredBytes: 100000,
		TotalTokensSaved:   75000,
	}}
	h := NewHandler(nil, reader, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/ledger/summary", nil)

	if err := h.LedgerSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !reader.lastParams.StartDate.IsZero() || !reader.lastParams.EndDate.IsZero() {
		t.Errorf("expected all-time query, got %+v", reader.lastParams)
	}

	var summary ledger.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if summary.TotalCommands != 42 || summary.TotalTokensSaved != 75000 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestLedgerSummary_WindowedQuery(t *testing.T) {
	reader := &mockReader{summary: &ledger.Summary{}}
	h := NewHandler(nil, reader, nil)
	c, _ := newHandlerContext(http.MethodGet, "/v1/ledger/summary?days=7", nil)

	if err := h.LedgerSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reader.lastParams.StartDate.IsZero() || reader.lastParams.EndDate.IsZero() {
		t.Errorf("expected windowed query, got %+v", reader.lastParams)
	}
}

func TestLedgerSummary_ReaderError(t *testing.T) {
	reader := &mockReader{err: errors.New("database is locked")}
	h := NewHandler(nil, reader, nil)
	c, rec := newHandlerContext(http.MethodGet, "/v1/ledger/summary", nil)

	if err := h.LedgerSummary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "storage_error") {
		t.Errorf("expected storage_error body, got %s", rec.Body.String())
	}
}

// --- IngestEvents handler tests ---

func TestIngestEvents_Success(t *testing.T) {
	recorder := &mockRecorder{}
	h := NewHandler(nil, nil, recorder)

	body := strings.NewReader(`[
		{"command": "cargo", "subcommand": "build", "raw_bytes": 4000, "filtered_bytes": 2000},
		{"id": "given-id", "timestamp": "2025-12-05T10:00:00Z", "command": "git", "raw_bytes": 100, "filtered_bytes": 50, "tokens_saved": 99}
	]`)
	c, rec := newHandlerContext(http.MethodPost, "/v1/events", body)

	if err := h.IngestEvents(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Accepted != 2 || resp.Estimated != 1 {
		t.Errorf("expected accepted=2 estimated=1, got %+v", resp)
	}

	if len(recorder.events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(recorder.events))
	}

	first := recorder.events[0]
	if first.ID == "" || len(first.ID) != 36 {
		t.Errorf("expected generated UUID, got %q", first.ID)
	}
	if first.Timestamp.IsZero() {
		t.Error("expected timestamp to be defaulted")
	}
	if first.TokensSaved != 500 {
		t.Errorf("expected estimated 500 tokens saved, got %d", first.TokensSaved)
	}

	second := recorder.events[1]
	if second.ID != "given-id" {
		t.Errorf("expected caller-provided ID to be kept, got %q", second.ID)
	}
	if second.TokensSaved != 99 {
		t.Errorf("expected caller-provided tokens_saved to be kept, got %d", second.TokensSaved)
	}
}

func TestIngestEvents_EmptyArray(t *testing.T) {
	recorder := &mockRecorder{}
	h := NewHandler(nil, nil, recorder)
	c, rec := newHandlerContext(http.MethodPost, "/v1/events", strings.NewReader(`[]`))

	if err := h.IngestEvents(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var resp IngestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Accepted != 0 || resp.Estimated != 0 {
		t.Errorf("expected zero counts, got %+v", resp)
	}
}

func TestIngestEvents_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"object instead of array", `{"command": "cargo"}`},
		{"missing command", `[{"raw_bytes": 100, "filtered_bytes": 50}]`},
		{"negative bytes", `[{"command": "cargo", "raw_bytes": -1, "filtered_bytes": 0}]`},
		{"negative tokens", `[{"command": "cargo", "raw_bytes": 10, "filtered_bytes": 5, "tokens_saved": -2}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := &mockRecorder{}
			h := NewHandler(nil, nil, recorder)
			c, rec := newHandlerContext(http.MethodPost, "/v1/events", strings.NewReader(tt.body))

			if err := h.IngestEvents(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(recorder.events) != 0 {
				t.Errorf("expected no recorded events, got %d", len(recorder.events))
			}
		})
	}
}

func TestIngestEvents_NilRecorder(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	c, rec := newHandlerContext(http.MethodPost, "/v1/events", strings.NewReader(`[]`))

	if err := h.IngestEvents(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
