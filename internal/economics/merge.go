// Package economics implements the reconciliation core: the sparse join of
// spend and savings periods, the dual cost-per-token computation, and the
// aggregate rollup. Every function here is pure; retrieval, normalization
// scheduling, and rendering belong to the surrounding packages.
package economics

import (
	"sort"

	"costlens/internal/core"
)

// Merge joins the two collections into exactly one PeriodEconomics per
// distinct canonical key appearing in either input. A key→record map is
// seeded from the spend collection, then each savings record (already
// normalized to canonical keys by the caller) merges into its slot or inserts
// a savings-only record, keeping the whole join O(n+m).
//
// A nil or empty spend collection is the source-unavailable case: the merge
// still completes and every spend-derived field on the output stays absent.
// Nil here means "no data", never "spent nothing".
//
// The result is sorted ascending by canonical key so reports are reproducible
// and text/CSV output stays diffable.
func Merge(spend []core.SpendPeriod, savings []core.SavingsPeriod) []core.PeriodEconomics {
	merged := make(map[string]*core.PeriodEconomics, len(spend)+len(savings))

	for i := range spend {
		sp := spend[i]
		merged[sp.PeriodKey] = &core.PeriodEconomics{
			PeriodKey: sp.PeriodKey,
			Spend:     &sp,
		}
	}

	for _, sv := range savings {
		rec, ok := merged[sv.PeriodKey]
		if !ok {
			merged[sv.PeriodKey] = &core.PeriodEconomics{
				PeriodKey: sv.PeriodKey,
				Savings: &core.SavingsPeriod{
					PeriodKey:   sv.PeriodKey,
					Commands:    sv.Commands,
					TokensSaved: sv.TokensSaved,
				},
			}
			continue
		}
		if rec.Savings == nil {
			rec.Savings = &core.SavingsPeriod{
				PeriodKey:   sv.PeriodKey,
				Commands:    sv.Commands,
				TokensSaved: sv.TokensSaved,
			}
			continue
		}
		// Two native keys can normalize onto the same canonical key.
		// Accumulate so insertion order cannot change the result.
		rec.Savings.Commands += sv.Commands
		rec.Savings.TokensSaved += sv.TokensSaved
	}

	out := make([]core.PeriodEconomics, 0, len(merged))
	for _, rec := range merged {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodKey < out[j].PeriodKey })

	return out
}
