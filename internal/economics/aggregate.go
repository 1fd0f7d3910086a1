package economics

import (
	"costlens/internal/core"
)

// Summarize reduces a collection of PeriodEconomics into one summary.
//
// Totals treat absent fields as zero: the aggregate question is "how much in
// total", not "was data present". This is the only place where absent and
// zero are equivalent; per-period display keeps them distinct.
//
// The overall ratios are recomputed from the summed cost and summed tokens.
// Averaging the per-period ratios instead would overweight periods with small
// denominators.
func Summarize(recs []core.PeriodEconomics) core.EconomicsSummary {
	s := core.EconomicsSummary{Periods: len(recs)}

	for i := range recs {
		if sp := recs[i].Spend; sp != nil {
			s.TotalCost += sp.Cost
			s.TotalActiveTokens += sp.ActiveTokens()
			s.TotalBlendedTokens += sp.TotalTokens
		}
		if sv := recs[i].Savings; sv != nil {
			s.TotalCommands += sv.Commands
			s.TotalTokensSaved += sv.TokensSaved
		}
	}

	s.ActiveCostPerToken = ratio(s.TotalCost, s.TotalActiveTokens)
	s.BlendedCostPerToken = ratio(s.TotalCost, s.TotalBlendedTokens)
	s.EstimatedSavingsActive = estimate(s.ActiveCostPerToken, s.TotalTokensSaved)
	s.EstimatedSavingsBlended = estimate(s.BlendedCostPerToken, s.TotalTokensSaved)

	if s.TotalCost != 0 {
		s.ActiveSavingsPercent = percentOf(s.EstimatedSavingsActive, s.TotalCost)
		s.BlendedSavingsPercent = percentOf(s.EstimatedSavingsBlended, s.TotalCost)
	}

	return s
}

// percentOf returns estimate/total*100, or nil when the estimate is
// undefined. Callers guard against a zero total.
func percentOf(estimate *float64, total float64) *float64 {
	if estimate == nil {
		return nil
	}
	v := *estimate / total * 100
	return &v
}
