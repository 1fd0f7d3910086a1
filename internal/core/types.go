package core

// Granularity is the time-bucket size for a report period.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}

// AllGranularities returns the supported granularities in report order.
func AllGranularities() []Granularity {
	return []Granularity{GranularityDaily, GranularityWeekly, GranularityMonthly}
}

// SpendPeriod is one external-source record for one period, keyed by the
// canonical calendar. Immutable once fetched.
type SpendPeriod struct {
	// PeriodKey is the canonical period key: YYYY-MM-DD for daily, the ISO
	// week-start date (Monday, YYYY-MM-DD) for weekly, YYYY-MM for monthly.
	PeriodKey string `json:"period_key"`

	// Cost is the billed amount for the period, in dollars.
	Cost float64 `json:"cost"`

	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`

	// TotalTokens includes cache reads and creations on top of input/output.
	TotalTokens int64 `json:"total_tokens"`
}

// ActiveTokens returns the tokens that bill as context (input + output),
// excluding cache traffic.
func (s *SpendPeriod) ActiveTokens() int64 {
	return s.InputTokens + s.OutputTokens
}

// SavingsPeriod is one internal-source record for one period, in the ledger's
// native calendar. Weekly keys may be week-shifted relative to the canonical
// calendar; the period package reconciles them. Immutable once fetched.
type SavingsPeriod struct {
	PeriodKey   string `json:"period_key"`
	Commands    int64  `json:"commands"`
	TokensSaved int64  `json:"tokens_saved"`
}

// PeriodEconomics is the merged record for one canonical period key. At least
// one of Spend and Savings is always present; a record with neither is never
// created. The four computed fields are nil until the calculator enriches the
// record, and stay nil when undefined (zero denominator or missing source) —
// nil means "no data", never "zero".
type PeriodEconomics struct {
	PeriodKey string `json:"period_key"`

	Spend   *SpendPeriod   `json:"spend,omitempty"`
	Savings *SavingsPeriod `json:"savings,omitempty"`

	// ActiveCostPerToken is Cost / (input + output tokens).
	ActiveCostPerToken *float64 `json:"active_cost_per_token"`
	// BlendedCostPerToken is Cost / total tokens including cache reads.
	BlendedCostPerToken *float64 `json:"blended_cost_per_token"`
	// EstimatedSavingsActive is ActiveCostPerToken * TokensSaved.
	EstimatedSavingsActive *float64 `json:"estimated_savings_active"`
	// EstimatedSavingsBlended is BlendedCostPerToken * TokensSaved.
	EstimatedSavingsBlended *float64 `json:"estimated_savings_blended"`
}

// EconomicsSummary aggregates a collection of PeriodEconomics. Totals treat
// absent fields as zero; the optional ratios and estimates are recomputed from
// the summed totals, not averaged across periods, and are nil when undefined.
// Derived on demand, never persisted.
type EconomicsSummary struct {
	Periods int `json:"periods"`

	TotalCost          float64 `json:"total_cost"`
	TotalActiveTokens  int64   `json:"total_active_tokens"`
	TotalBlendedTokens int64   `json:"total_blended_tokens"`
	TotalCommands      int64   `json:"total_commands"`
	TotalTokensSaved   int64   `json:"total_tokens_saved"`

	ActiveCostPerToken      *float64 `json:"active_cost_per_token"`
	BlendedCostPerToken     *float64 `json:"blended_cost_per_token"`
	EstimatedSavingsActive  *float64 `json:"estimated_savings_active"`
	EstimatedSavingsBlended *float64 `json:"estimated_savings_blended"`

	// Percent-of-spend figures (estimate / total cost * 100), only defined
	// when total cost is nonzero.
	ActiveSavingsPercent  *float64 `json:"active_savings_percent"`
	BlendedSavingsPercent *float64 `json:"blended_savings_percent"`
}
