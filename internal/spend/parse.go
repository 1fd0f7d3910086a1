package spend

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidwall/gjson"

	"costlens/internal/core"
	"costlens/internal/period"
)

// Prometheus metric for spend rows dropped during parsing
var spendRowsSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "costlens_spend_rows_skipped_total",
		Help: "Total number of spend rows dropped for malformed period keys",
	},
	[]string{"granularity"},
)

// sectionFor maps a granularity onto its array and period-key field in the
// upstream JSON (ccusage layout: daily/weekly/monthly sections keyed by
// date/week/month).
func sectionFor(g core.Granularity) (section, keyField string, err error) {
	switch g {
	case core.GranularityDaily:
		return "daily", "date", nil
	case core.GranularityWeekly:
		return "weekly", "week", nil
	case core.GranularityMonthly:
		return "monthly", "month", nil
	default:
		return "", "", fmt.Errorf("unsupported granularity: %q", g)
	}
}

// Parse extracts the spend records for one granularity from raw CLI output.
// Rows with missing or malformed period keys are skipped and counted, never
// aborting the rest of the parse. Weekly keys are canonicalized onto ISO
// week starts so they join against ledger keys. Token and cost fields
// tolerate absence; a missing total is derived from the components.
//
// Returns the records, the number of skipped rows, and an error only when
// the payload as a whole is unusable.
func Parse(raw []byte, g core.Granularity) ([]core.SpendPeriod, int, error) {
	if !gjson.ValidBytes(raw) {
		return nil, 0, fmt.Errorf("spend output is not valid JSON")
	}

	section, keyField, err := sectionFor(g)
	if err != nil {
		return nil, 0, err
	}

	rows := gjson.GetBytes(raw, section)
	if !rows.Exists() {
		return nil, 0, fmt.Errorf("spend output has no %q section", section)
	}
	if !rows.IsArray() {
		return nil, 0, fmt.Errorf("spend section %q is not an array", section)
	}

	var (
		periods []core.SpendPeriod
		skipped int
	)
	rows.ForEach(func(_, row gjson.Result) bool {
		key := row.Get(keyField).String()
		canonical, err := period.Normalize(key, g, period.CalendarISO)
		if err != nil {
			skipped++
			spendRowsSkipped.WithLabelValues(string(g)).Inc()
			return true
		}

		sp := core.SpendPeriod{
			PeriodKey:           canonical,
			Cost:                row.Get("totalCost").Float(),
			InputTokens:         row.Get("inputTokens").Int(),
			OutputTokens:        row.Get("outputTokens").Int(),
			CacheReadTokens:     row.Get("cacheReadTokens").Int(),
			CacheCreationTokens: row.Get("cacheCreationTokens").Int(),
			TotalTokens:         row.Get("totalTokens").Int(),
		}
		if sp.TotalTokens == 0 {
			sp.TotalTokens = sp.InputTokens + sp.OutputTokens + sp.CacheReadTokens + sp.CacheCreationTokens
		}

		periods = append(periods, sp)
		return true
	})

	return periods, skipped, nil
}
