package economics

import (
	"costlens/internal/core"
)

// Enrich computes the two cost-per-token ratios and the two savings estimates
// for one record, in place. Each ratio is independently undefined (nil) when
// its denominator is zero or spend data is absent; an estimate additionally
// requires the savings record to be present. Undefined is an absent value,
// not an error and not zero — consumers must be able to tell "no data" from
// "ratio is zero".
func Enrich(rec *core.PeriodEconomics) {
	if rec.Spend != nil {
		rec.ActiveCostPerToken = ratio(rec.Spend.Cost, rec.Spend.ActiveTokens())
		rec.BlendedCostPerToken = ratio(rec.Spend.Cost, rec.Spend.TotalTokens)
	}
	if rec.Savings != nil {
		rec.EstimatedSavingsActive = estimate(rec.ActiveCostPerToken, rec.Savings.TokensSaved)
		rec.EstimatedSavingsBlended = estimate(rec.BlendedCostPerToken, rec.Savings.TokensSaved)
	}
}

// EnrichAll applies Enrich to every record. Records are independent; no field
// of one record influences another.
func EnrichAll(recs []core.PeriodEconomics) {
	for i := range recs {
		Enrich(&recs[i])
	}
}

// ratio returns cost divided by tokens, or nil when the denominator is not
// positive.
func ratio(cost float64, tokens int64) *float64 {
	if tokens <= 0 {
		return nil
	}
	v := cost / float64(tokens)
	return &v
}

// estimate prices saved tokens at the given rate, or nil when the rate is
// undefined.
func estimate(rate *float64, tokensSaved int64) *float64 {
	if rate == nil {
		return nil
	}
	v := *rate * float64(tokensSaved)
	return &v
}
