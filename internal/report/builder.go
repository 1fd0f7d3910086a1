package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"costlens/internal/core"
	"costlens/internal/economics"
	"costlens/internal/ledger"
	"costlens/internal/period"
	"costlens/internal/spend"
)

var (
	reportSpendDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costlens_report_spend_degraded_total",
		Help: "Total number of reports built without spend data because the source was unavailable",
	}, []string{"granularity"})

	reportKeysSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "costlens_report_savings_keys_skipped_total",
		Help: "Total number of savings records dropped from reports due to malformed period keys",
	}, []string{"granularity"})
)

// Builder assembles reports from the two sources. A ledger read failure is
// fatal for the run; a spend fetch failure degrades the report to
// savings-only and records the reason.
type Builder struct {
	spend  spend.Provider
	ledger ledger.Reader
}

// NewBuilder creates a report builder over the given sources.
func NewBuilder(spendProvider spend.Provider, savingsReader ledger.Reader) *Builder {
	return &Builder{spend: spendProvider, ledger: savingsReader}
}

// Build produces the report for one granularity.
func (b *Builder) Build(ctx context.Context, params Params) (*Report, error) {
	if params.Granularity == "" {
		params.Granularity = core.GranularityDaily
	}
	if !params.Granularity.Valid() {
		return nil, core.NewValidationError(fmt.Sprintf("invalid granularity %q", params.Granularity), nil)
	}
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() && params.EndDate.Before(params.StartDate) {
		return nil, core.NewValidationError("end date precedes start date", nil)
	}

	// A disabled ledger contributes an empty savings side, not an error.
	var rows []core.SavingsPeriod
	if b.ledger != nil {
		var err error
		rows, err = b.ledger.SavingsByPeriod(ctx, ledger.QueryParams{
			StartDate:   params.StartDate,
			EndDate:     params.EndDate,
			Granularity: params.Granularity,
		})
		if err != nil {
			return nil, core.NewStorageError("savings read", "failed to read savings ledger", err)
		}
	}

	savings, skipped := normalizeSavings(rows, params.Granularity)

	rep := &Report{
		Granularity:    params.Granularity,
		GeneratedAt:    time.Now().UTC(),
		SpendAvailable: true,
		SkippedRecords: skipped,
	}

	spendPeriods, err := b.fetchSpend(ctx, params)
	if err != nil {
		// Degrade to savings-only rather than failing the run
		reportSpendDegraded.WithLabelValues(string(params.Granularity)).Inc()
		slog.Warn("spend source unavailable, building savings-only report",
			"granularity", params.Granularity,
			"error", err,
		)
		rep.SpendAvailable = false
		rep.SpendError = err.Error()
		spendPeriods = nil
	}

	rep.Periods = economics.Merge(spendPeriods, savings)
	economics.EnrichAll(rep.Periods)
	rep.Summary = economics.Summarize(rep.Periods)

	return rep, nil
}

// BuildAll builds one report per granularity concurrently. The returned slice
// is ordered daily, weekly, monthly regardless of completion order.
func (b *Builder) BuildAll(ctx context.Context, params Params) ([]*Report, error) {
	granularities := core.AllGranularities()
	reports := make([]*Report, len(granularities))

	g, ctx := errgroup.WithContext(ctx)
	for i, granularity := range granularities {
		g.Go(func() error {
			p := params
			p.Granularity = granularity
			rep, err := b.Build(ctx, p)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

func (b *Builder) fetchSpend(ctx context.Context, params Params) ([]core.SpendPeriod, error) {
	if b.spend == nil {
		return nil, core.NewSourceUnavailableError("spend", fmt.Errorf("no spend provider configured"))
	}

	query := spend.QueryParams{Granularity: params.Granularity}
	if !params.StartDate.IsZero() {
		query.StartDate = params.StartDate.UTC().Format("2006-01-02")
	}
	if !params.EndDate.IsZero() {
		query.EndDate = params.EndDate.UTC().Format("2006-01-02")
	}

	return b.spend.FetchSpend(ctx, query)
}

// normalizeSavings converts native ledger keys to canonical ones. Records
// whose keys fail to parse are skipped and counted, never aborting the run.
func normalizeSavings(rows []core.SavingsPeriod, g core.Granularity) ([]core.SavingsPeriod, int) {
	normalized := make([]core.SavingsPeriod, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		key, err := period.Normalize(row.PeriodKey, g, ledger.WeekCalendar)
		if err != nil {
			skipped++
			reportKeysSkipped.WithLabelValues(string(g)).Inc()
			slog.Warn("skipping savings record with malformed period key",
				"period_key", row.PeriodKey,
				"granularity", g,
				"error", err,
			)
			continue
		}
		row.PeriodKey = key
		normalized = append(normalized, row)
	}

	return normalized, skipped
}
