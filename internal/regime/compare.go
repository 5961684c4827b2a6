package regime

import (
	"context"
	"fmt"
	"sort"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/strategy"
	"hsms-trader/internal/universe"
)

// ComparisonRow contrasts one symbol's performance under HSMS 1.0 and
// 2.0. Only symbols that resolved OK under both versions appear.
type ComparisonRow struct {
	Symbol string
	Name   string
	V1     domain.SymbolResult
	V2     domain.SymbolResult

	// Version 2 minus version 1.
	ReturnDiff float64
	MDDDiff    float64
	TradesDiff int
}

// Comparison is the output of one version-comparison run.
type Comparison struct {
	V1 []domain.SymbolResult
	V2 []domain.SymbolResult

	// Common holds the per-symbol diffs, sorted by return improvement
	// descending.
	Common []ComparisonRow
}

// CompareVersions runs the same universe backtest under HSMS 1.0 and
// 2.0 and diffs the per-symbol results. opts.StrategyVersion is
// ignored; everything else (store, costs, cash, date range) is shared
// by both runs.
func CompareVersions(ctx context.Context, opts universe.Options, entries []domain.UniverseEntry) (*Comparison, error) {
	run := func(version string) ([]domain.SymbolResult, error) {
		o := opts
		o.StrategyVersion = version
		r, err := universe.NewRunner(o)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", version, err)
		}
		results, err := r.Run(ctx, entries)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", version, err)
		}
		return results, nil
	}

	v1, err := run(strategy.VersionHSMS1)
	if err != nil {
		return nil, err
	}
	v2, err := run(strategy.VersionHSMS2)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]domain.SymbolResult, len(v2))
	for _, res := range v2 {
		bySymbol[res.Symbol] = res
	}

	cmp := &Comparison{V1: v1, V2: v2}
	for _, r1 := range v1 {
		r2, ok := bySymbol[r1.Symbol]
		if !ok || r1.Status != domain.StatusOK || r2.Status != domain.StatusOK {
			continue
		}
		cmp.Common = append(cmp.Common, ComparisonRow{
			Symbol:     r1.Symbol,
			Name:       r1.Name,
			V1:         r1,
			V2:         r2,
			ReturnDiff: r2.TotalReturn - r1.TotalReturn,
			MDDDiff:    r2.MaxDrawdown - r1.MaxDrawdown,
			TradesDiff: r2.TradeCount - r1.TradeCount,
		})
	}
	sort.Slice(cmp.Common, func(i, j int) bool {
		return cmp.Common[i].ReturnDiff > cmp.Common[j].ReturnDiff
	})
	return cmp, nil
}
