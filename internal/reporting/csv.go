// Package reporting renders backtest result tables, regime summaries,
// and version comparisons as CSV or Markdown strings. Renderers are
// pure; callers decide where the output goes.
package reporting

import (
	"fmt"
	"strings"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/regime"
)

// RenderResultsCSV renders a universe result table as CSV. Undefined
// win rate and Sharpe cells are left empty rather than zeroed.
func RenderResultsCSV(results []domain.SymbolResult) string {
	var sb strings.Builder

	sb.WriteString("symbol,name,total_return,mdd,win_rate,sharpe,final_equity,n_trades,status,reason\n")

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("%s,%s,%.6f,%.6f,%s,%s,%.2f,%d,%s,%s\n",
			r.Symbol,
			csvEscape(r.Name),
			r.TotalReturn,
			r.MaxDrawdown,
			optional(r.WinRate),
			optional(r.Sharpe),
			r.FinalEquity,
			r.TradeCount,
			r.Status,
			csvEscape(r.Reason),
		))
	}
	return sb.String()
}

// RenderRegimeSummaryCSV renders per-regime trade aggregates as CSV.
func RenderRegimeSummaryCSV(summaries []domain.RegimeSummary) string {
	var sb strings.Builder

	sb.WriteString("regime,trades,win_rate,avg_trade_return,median_trade_return,total_pnl\n")

	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%.6f,%.6f,%.2f\n",
			s.Regime,
			s.Trades,
			optional(s.WinRate),
			s.AvgTradeReturn,
			s.MedTradeReturn,
			s.TotalPnL,
		))
	}
	return sb.String()
}

// RenderTripsCSV renders labeled round trips as CSV, one row per
// closed trade.
func RenderTripsCSV(trips []regime.LabeledTrip) string {
	var sb strings.Builder

	sb.WriteString("symbol,entry_date,exit_date,entry_price,exit_price,qty,pnl,trade_return,regime\n")

	for _, tr := range trips {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.2f,%.2f,%d,%.2f,%.6f,%s\n",
			tr.Symbol,
			tr.EntryDate.Format("2006-01-02"),
			tr.ExitDate.Format("2006-01-02"),
			tr.EntryPrice,
			tr.ExitPrice,
			tr.Qty,
			tr.PnL,
			tr.Return,
			tr.Regime,
		))
	}
	return sb.String()
}

// RenderComparisonCSV renders per-symbol version diffs as CSV, sorted
// as given (return improvement descending from CompareVersions).
func RenderComparisonCSV(rows []regime.ComparisonRow) string {
	var sb strings.Builder

	sb.WriteString("symbol,name,return_v1,return_v2,return_diff,mdd_v1,mdd_v2,mdd_diff,trades_v1,trades_v2,trades_diff\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%d,%d\n",
			r.Symbol,
			csvEscape(r.Name),
			r.V1.TotalReturn,
			r.V2.TotalReturn,
			r.ReturnDiff,
			r.V1.MaxDrawdown,
			r.V2.MaxDrawdown,
			r.MDDDiff,
			r.V1.TradeCount,
			r.V2.TradeCount,
			r.TradesDiff,
		))
	}
	return sb.String()
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.6f", *v)
}

// csvEscape quotes a field containing separators or quotes. Korean
// display names are passed through untouched.
func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
