package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"costlens/internal/core"
)

var csvHeader = []string{
	"granularity",
	"period",
	"cost",
	"input_tokens",
	"output_tokens",
	"cache_read_tokens",
	"cache_creation_tokens",
	"total_tokens",
	"commands",
	"tokens_saved",
	"active_cost_per_token",
	"blended_cost_per_token",
	"estimated_savings_active",
	"estimated_savings_blended",
}

// CSVRenderer renders report periods as CSV rows. Absent values keep the
// "-" placeholder so they stay distinguishable from real zeros.
type CSVRenderer struct{}

func (r *CSVRenderer) Render(w io.Writer, rep *Report) error {
	return r.RenderAll(w, []*Report{rep})
}

func (r *CSVRenderer) RenderAll(w io.Writer, reps []*Report) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rep := range reps {
		for _, p := range rep.Periods {
			if err := cw.Write(csvRow(rep.Granularity, &p)); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(g core.Granularity, p *core.PeriodEconomics) []string {
	cost := absentPlaceholder
	inputTokens := absentPlaceholder
	outputTokens := absentPlaceholder
	cacheReadTokens := absentPlaceholder
	cacheCreationTokens := absentPlaceholder
	totalTokens := absentPlaceholder
	if p.Spend != nil {
		cost = csvFloat(p.Spend.Cost)
		inputTokens = csvInt(p.Spend.InputTokens)
		outputTokens = csvInt(p.Spend.OutputTokens)
		cacheReadTokens = csvInt(p.Spend.CacheReadTokens)
		cacheCreationTokens = csvInt(p.Spend.CacheCreationTokens)
		totalTokens = csvInt(p.Spend.TotalTokens)
	}

	commands := absentPlaceholder
	tokensSaved := absentPlaceholder
	if p.Savings != nil {
		commands = csvInt(p.Savings.Commands)
		tokensSaved = csvInt(p.Savings.TokensSaved)
	}

	return []string{
		string(g),
		p.PeriodKey,
		cost,
		inputTokens,
		outputTokens,
		cacheReadTokens,
		cacheCreationTokens,
		totalTokens,
		commands,
		tokensSaved,
		csvOptFloat(p.ActiveCostPerToken),
		csvOptFloat(p.BlendedCostPerToken),
		csvOptFloat(p.EstimatedSavingsActive),
		csvOptFloat(p.EstimatedSavingsBlended),
	}
}

func csvFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvOptFloat(v *float64) string {
	if v == nil {
		return absentPlaceholder
	}
	return csvFloat(*v)
}

func csvInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
