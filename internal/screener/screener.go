// Package screener narrows a candidate universe to the symbols most
// worth backtesting: liquid names that actually move. Each symbol is
// scored by average volume times daily return volatility over a recent
// lookback window, and the top N survive.
package screener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// Default filter values.
const (
	DefaultLookbackDays = 20
	DefaultTopN         = 30
	DefaultMinPrice     = 1_000
	DefaultMinAvgVolume = 50_000

	// minBars is the floor below which volatility is meaningless.
	minBars = 5
)

// Options configures a screening pass.
type Options struct {
	BarStore storage.BarStore

	// LookbackDays is the number of most recent bars scored.
	LookbackDays int
	// TopN caps the result size.
	TopN int
	// MinPrice drops penny names (average close below this).
	MinPrice float64
	// MinAvgVolume drops illiquid names.
	MinAvgVolume float64

	Verbose bool
}

// Score is one symbol's screening row.
type Score struct {
	Symbol     string
	AvgVolume  float64
	Volatility float64 // sample stddev of daily returns
	Score      float64 // AvgVolume * Volatility
}

// Screener ranks candidate symbols.
type Screener struct {
	opts   Options
	logger *log.Logger
}

// New validates options and fills defaults.
func New(opts Options) (*Screener, error) {
	if opts.BarStore == nil {
		return nil, errors.New("screener: bar store is required")
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.MinPrice < 0 || opts.MinAvgVolume < 0 {
		return nil, errors.New("screener: filters must be non-negative")
	}
	return &Screener{
		opts:   opts,
		logger: log.New(os.Stderr, "[screener] ", log.LstdFlags),
	}, nil
}

// Run scores the candidates as of asOf and returns the top N rows,
// best first. Symbols with no data or too short a history are silently
// dropped; that is the screener's job, not an error.
func (s *Screener) Run(ctx context.Context, candidates []string, asOf time.Time) ([]Score, error) {
	var rows []Score

	for _, symbol := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		score, ok, err := s.scoreSymbol(ctx, symbol, asOf)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", symbol, err)
		}
		if ok {
			rows = append(rows, score)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	if len(rows) > s.opts.TopN {
		rows = rows[:s.opts.TopN]
	}
	s.logf("scored %d candidates, kept %d", len(candidates), len(rows))
	return rows, nil
}

func (s *Screener) scoreSymbol(ctx context.Context, symbol string, asOf time.Time) (Score, bool, error) {
	// Calendar window twice the lookback to absorb non-trading days,
	// then trimmed to the most recent bars.
	from := asOf.AddDate(0, 0, -2*s.opts.LookbackDays)
	bars, err := s.opts.BarStore.GetDailyBars(ctx, symbol, from, asOf)
	if errors.Is(err, storage.ErrNotFound) {
		return Score{}, false, nil
	}
	if err != nil {
		return Score{}, false, err
	}
	if len(bars) > s.opts.LookbackDays {
		bars = bars[len(bars)-s.opts.LookbackDays:]
	}
	if len(bars) < minBars {
		return Score{}, false, nil
	}

	var sumVolume, sumClose float64
	for _, b := range bars {
		sumVolume += b.Volume
		sumClose += b.Close
	}
	avgVolume := sumVolume / float64(len(bars))
	avgPrice := sumClose / float64(len(bars))

	if avgPrice < s.opts.MinPrice || avgVolume < s.opts.MinAvgVolume {
		return Score{}, false, nil
	}

	vol, ok := returnStddev(bars)
	if !ok {
		return Score{}, false, nil
	}

	return Score{
		Symbol:     symbol,
		AvgVolume:  avgVolume,
		Volatility: vol,
		Score:      avgVolume * vol,
	}, true, nil
}

// returnStddev computes the sample standard deviation of daily close
// returns. Bars with a zero base price are skipped.
func returnStddev(bars []domain.Bar) (float64, bool) {
	var returns []float64
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close == 0 {
			continue
		}
		returns = append(returns, bars[i].Close/bars[i-1].Close-1)
	}
	if len(returns) < 2 {
		return 0, false
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(returns)-1)), true
}

func (s *Screener) logf(format string, args ...any) {
	if s.opts.Verbose {
		s.logger.Printf(format, args...)
	}
}
