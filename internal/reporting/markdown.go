package reporting

import (
	"fmt"
	"strings"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/regime"
)

// ResultReport bundles everything a universe backtest run produced.
type ResultReport struct {
	GeneratedAt     time.Time
	StrategyVersion string
	UniverseDate    string
	Results         []domain.SymbolResult
}

// RenderResultsMarkdown renders a universe result table as Markdown:
// OK rows in a ranked table, SKIP/ERROR rows listed below it.
func RenderResultsMarkdown(r *ResultReport) string {
	var sb strings.Builder

	sb.WriteString("# Universe Backtest\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Strategy: %s | Universe: %s\n\n", r.StrategyVersion, r.UniverseDate))

	ok, rest := splitByStatus(r.Results)

	sb.WriteString("## Ranking\n\n")
	if len(ok) > 0 {
		sb.WriteString("| # | Symbol | Name | Return | MDD | WinRate | Sharpe | Final Equity | Trades |\n")
		sb.WriteString("|---|--------|------|--------|-----|---------|--------|--------------|--------|\n")
		for i, res := range ok {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.2f%% | %.2f%% | %s | %s | %.0f | %d |\n",
				i+1, res.Symbol, res.Name,
				res.TotalReturn*100, res.MaxDrawdown*100,
				optionalPct(res.WinRate), optional(res.Sharpe),
				res.FinalEquity, res.TradeCount))
		}
	} else {
		sb.WriteString("No symbols completed.\n")
	}
	sb.WriteString("\n")

	if len(rest) > 0 {
		sb.WriteString("## Skipped / Failed\n\n")
		for _, res := range rest {
			sb.WriteString(fmt.Sprintf("- %s (%s): %s %s\n", res.Symbol, res.Name, res.Status, res.Reason))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderRegimeMarkdown renders per-regime trade aggregates as Markdown.
func RenderRegimeMarkdown(summaries []domain.RegimeSummary) string {
	var sb strings.Builder

	sb.WriteString("## Regime Summary (trade-level)\n\n")
	if len(summaries) == 0 {
		sb.WriteString("No closed trades.\n")
		return sb.String()
	}

	sb.WriteString("| Regime | Trades | WinRate | Avg Return | Median Return | Total PnL |\n")
	sb.WriteString("|--------|--------|---------|------------|---------------|----------|\n")
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %.2f%% | %.2f%% | %.0f |\n",
			s.Regime, s.Trades, optionalPct(s.WinRate),
			s.AvgTradeReturn*100, s.MedTradeReturn*100, s.TotalPnL))
	}
	sb.WriteString("\n")
	return sb.String()
}

// RenderComparisonMarkdown renders the version comparison: both
// rankings' summary lines plus the biggest improvements and declines
// among common symbols.
func RenderComparisonMarkdown(cmp *regime.Comparison, topN int) string {
	var sb strings.Builder

	sb.WriteString("# HSMS 1.0 vs 2.0\n\n")
	sb.WriteString(summaryLine("HSMS 1.0", cmp.V1))
	sb.WriteString(summaryLine("HSMS 2.0", cmp.V2))
	sb.WriteString("\n")

	if len(cmp.Common) == 0 {
		sb.WriteString("No common symbols completed under both versions.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("## Top %d improvements (2.0 − 1.0)\n\n", topN))
	writeDiffTable(&sb, head(cmp.Common, topN))

	declines := tail(cmp.Common, topN)
	sb.WriteString(fmt.Sprintf("## Top %d declines (2.0 − 1.0)\n\n", topN))
	writeDiffTable(&sb, declines)

	return sb.String()
}

func writeDiffTable(sb *strings.Builder, rows []regime.ComparisonRow) {
	sb.WriteString("| Symbol | Name | Return diff | MDD diff | Trades diff |\n")
	sb.WriteString("|--------|------|-------------|----------|-------------|\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %s | %+.2f%% | %+.2f%% | %+d |\n",
			r.Symbol, r.Name, r.ReturnDiff*100, r.MDDDiff*100, r.TradesDiff))
	}
	sb.WriteString("\n")
}

func summaryLine(label string, results []domain.SymbolResult) string {
	ok, _ := splitByStatus(results)
	if len(ok) == 0 {
		return fmt.Sprintf("%s: no completed symbols\n", label)
	}
	sumRet, sumTrades := 0.0, 0
	for _, r := range ok {
		sumRet += r.TotalReturn
		sumTrades += r.TradeCount
	}
	return fmt.Sprintf("%s: %d symbols, mean return %.2f%%, %.2f sell trades/symbol\n",
		label, len(ok), sumRet/float64(len(ok))*100, float64(sumTrades)/float64(len(ok)))
}

func splitByStatus(results []domain.SymbolResult) (ok, rest []domain.SymbolResult) {
	for _, r := range results {
		if r.Status == domain.StatusOK {
			ok = append(ok, r)
		} else {
			rest = append(rest, r)
		}
	}
	return ok, rest
}

func optionalPct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", *v*100)
}

func head(rows []regime.ComparisonRow, n int) []regime.ComparisonRow {
	if len(rows) < n {
		n = len(rows)
	}
	return rows[:n]
}

// tail returns the last n rows in worst-first order.
func tail(rows []regime.ComparisonRow, n int) []regime.ComparisonRow {
	if len(rows) < n {
		n = len(rows)
	}
	out := make([]regime.ComparisonRow, 0, n)
	for i := len(rows) - 1; i >= len(rows)-n; i-- {
		out = append(out, rows[i])
	}
	return out
}
