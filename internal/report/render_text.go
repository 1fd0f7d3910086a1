package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"costlens/internal/core"
)

// Styles for the terminal renderer. Lipgloss downgrades them automatically
// when the output is not a terminal, so rendering to a file stays plain.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

const absentPlaceholder = "-"

// TextRenderer renders a report as a styled terminal table with a summary
// block and a savings sparkline.
type TextRenderer struct{}

func (r *TextRenderer) Render(w io.Writer, rep *Report) error {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("Cost economics (%s)", rep.Granularity)))
	sections = append(sections, subtleStyle.Render("generated "+rep.GeneratedAt.Format("2006-01-02 15:04:05 MST")))

	if !rep.SpendAvailable {
		notice := "spend source unavailable, report covers savings only"
		if rep.SpendError != "" {
			notice = fmt.Sprintf("spend source unavailable (%s), report covers savings only", rep.SpendError)
		}
		sections = append(sections, warnStyle.Render(notice))
	}
	if rep.SkippedRecords > 0 {
		sections = append(sections, warnStyle.Render(fmt.Sprintf("%d savings records skipped due to malformed period keys", rep.SkippedRecords)))
	}

	sections = append(sections, "", renderTable(rep.Periods))

	if spark := renderSavingsSparkline(rep.Periods); spark != "" {
		sections = append(sections, "", labelStyle.Render("tokens saved  ")+spark)
	}
	if chart := renderCostChart(rep.Periods); chart != "" {
		sections = append(sections, "", chart)
	}

	sections = append(sections, "", renderSummary(&rep.Summary))

	_, err := io.WriteString(w, lipgloss.JoinVertical(lipgloss.Left, sections...)+"\n")
	return err
}

func (r *TextRenderer) RenderAll(w io.Writer, reps []*Report) error {
	for i, rep := range reps {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, rep); err != nil {
			return err
		}
	}
	return nil
}

func renderTable(periods []core.PeriodEconomics) string {
	const rowFormat = "%-12s %12s %14s %14s %10s %12s %14s %14s"

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(rowFormat,
		"PERIOD", "COST", "ACTIVE TOK", "TOTAL TOK", "COMMANDS", "SAVED TOK", "EST SAVED ACT", "EST SAVED BLD")))

	if len(periods) == 0 {
		b.WriteString("\n")
		b.WriteString(subtleStyle.Render("no data for the selected range"))
		return b.String()
	}

	for _, p := range periods {
		cost := absentPlaceholder
		activeTokens := absentPlaceholder
		totalTokens := absentPlaceholder
		if p.Spend != nil {
			cost = fmt.Sprintf("$%.2f", p.Spend.Cost)
			activeTokens = formatCount(p.Spend.ActiveTokens())
			totalTokens = formatCount(p.Spend.TotalTokens)
		}

		commands := absentPlaceholder
		tokensSaved := absentPlaceholder
		if p.Savings != nil {
			commands = formatCount(p.Savings.Commands)
			tokensSaved = formatCount(p.Savings.TokensSaved)
		}

		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(rowFormat,
			p.PeriodKey, cost, activeTokens, totalTokens, commands, tokensSaved,
			formatMoney(p.EstimatedSavingsActive), formatMoney(p.EstimatedSavingsBlended)))
	}

	return b.String()
}

func renderSummary(s *core.EconomicsSummary) string {
	lines := []string{
		headerStyle.Render("Summary"),
		summaryLine("periods", fmt.Sprintf("%d", s.Periods)),
		summaryLine("total cost", fmt.Sprintf("$%.2f", s.TotalCost)),
		summaryLine("active tokens", formatCount(s.TotalActiveTokens)),
		summaryLine("blended tokens", formatCount(s.TotalBlendedTokens)),
		summaryLine("commands", formatCount(s.TotalCommands)),
		summaryLine("tokens saved", formatCount(s.TotalTokensSaved)),
		summaryLine("active $/token", formatRate(s.ActiveCostPerToken)),
		summaryLine("blended $/token", formatRate(s.BlendedCostPerToken)),
		summaryLine("est. saved (active)", formatMoney(s.EstimatedSavingsActive)+formatPercentSuffix(s.ActiveSavingsPercent)),
		summaryLine("est. saved (blended)", formatMoney(s.EstimatedSavingsBlended)+formatPercentSuffix(s.BlendedSavingsPercent)),
	}
	return strings.Join(lines, "\n")
}

func summaryLine(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("  %-22s", label)) + value
}

// Sparkline characters from lowest to highest intensity.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const sparklineMaxWidth = 60

// renderSavingsSparkline draws one rune per period scaled against the
// largest tokens-saved value, sampling down when the range is long.
func renderSavingsSparkline(periods []core.PeriodEconomics) string {
	values := make([]float64, 0, len(periods))
	maxVal := 0.0
	for _, p := range periods {
		v := 0.0
		if p.Savings != nil {
			v = float64(p.Savings.TokensSaved)
		}
		values = append(values, v)
		if v > maxVal {
			maxVal = v
		}
	}
	if len(values) < 2 || maxVal == 0 {
		return ""
	}

	step := 1.0
	if len(values) > sparklineMaxWidth {
		step = float64(len(values)) / float64(sparklineMaxWidth)
	}

	var b strings.Builder
	for i := 0; ; i++ {
		idx := int(float64(i) * step)
		if idx >= len(values) {
			break
		}
		normalized := int(values[idx] / maxVal * float64(len(sparkChars)-1))
		if normalized >= len(sparkChars) {
			normalized = len(sparkChars) - 1
		}
		if normalized < 0 {
			normalized = 0
		}
		b.WriteRune(sparkChars[normalized])
	}
	return b.String()
}

// renderCostChart plots the spend series when at least two periods carry
// spend data.
func renderCostChart(periods []core.PeriodEconomics) string {
	costs := make([]float64, 0, len(periods))
	for _, p := range periods {
		if p.Spend != nil {
			costs = append(costs, p.Spend.Cost)
		}
	}
	if len(costs) < 2 {
		return ""
	}

	width := len(costs)
	if width > sparklineMaxWidth {
		width = sparklineMaxWidth
	}

	return asciigraph.Plot(costs,
		asciigraph.Height(5),
		asciigraph.Width(width),
		asciigraph.Caption("cost per period ($)"),
	)
}

func formatCount(v int64) string {
	return fmt.Sprintf("%d", v)
}

func formatMoney(v *float64) string {
	if v == nil {
		return absentPlaceholder
	}
	return fmt.Sprintf("$%.4f", *v)
}

func formatRate(v *float64) string {
	if v == nil {
		return absentPlaceholder
	}
	return fmt.Sprintf("$%.6f", *v)
}

func formatPercentSuffix(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(" (%.1f%% of spend)", *v)
}
