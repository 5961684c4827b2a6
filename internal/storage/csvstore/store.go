// Package csvstore implements the storage interfaces over the flat-file
// layout the downloader produces:
//
//	{dir}/processed/{symbol}.csv   cleaned daily bars
//	{dir}/raw/{symbol}.csv         as-downloaded daily bars
//	{dir}/universe/kosdaq_{YYYYMMDD}.csv
//
// Bar files may carry Korean or English headers; both are recognized.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hsms-trader/internal/domain"
	"hsms-trader/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.BarStore      = (*Store)(nil)
	_ storage.UniverseStore = (*Store)(nil)
)

// columnAliases maps each standard column to the header spellings seen
// in the wild. First match wins.
var columnAliases = map[string][]string{
	"date":            {"date", "Date", "날짜"},
	"open":            {"open", "Open", "시가"},
	"high":            {"high", "High", "고가"},
	"low":             {"low", "Low", "저가"},
	"close":           {"close", "Close", "종가"},
	"volume":          {"volume", "Volume", "거래량"},
	"foreign_net_buy": {"foreign_net_buy", "외국인순매수", "외국인_순매수"},
}

// requiredColumns must resolve for a bar file to load; foreign_net_buy
// is optional and defaults to zero.
var requiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Store reads and writes bar series and universe snapshots under one
// data directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// GetDailyBars reads {symbol}.csv from processed/ first, then raw/.
// Returns ErrNotFound when neither file exists.
func (s *Store) GetDailyBars(_ context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	paths := []string{
		filepath.Join(s.dir, "processed", symbol+".csv"),
		filepath.Join(s.dir, "raw", symbol+".csv"),
	}

	for _, path := range paths {
		bars, err := readBarFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return filterRange(bars, from, to), nil
	}
	return nil, fmt.Errorf("symbol %s: %w", symbol, storage.ErrNotFound)
}

// SaveDailyBars writes the full series to processed/{symbol}.csv,
// merged with any bars already on disk.
func (s *Store) SaveDailyBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}

	existing, err := s.GetDailyBars(ctx, symbol, time.Time{}, time.Time{})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	byDate := make(map[time.Time]domain.Bar, len(existing)+len(bars))
	for _, b := range existing {
		byDate[b.Date] = b
	}
	for _, b := range bars {
		byDate[b.Date] = b
	}
	merged := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

	dir := filepath.Join(s.dir, "processed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, symbol+".csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "open", "high", "low", "close", "volume", "foreign_net_buy"}); err != nil {
		return err
	}
	for _, b := range merged {
		rec := []string{
			b.Date.Format("2006-01-02"),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
			formatFloat(b.ForeignNetBuy),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// GetUniverse reads universe/kosdaq_{YYYYMMDD}.csv for asOf.
func (s *Store) GetUniverse(_ context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	path := s.universePath(asOf)
	entries, err := readUniverseFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("universe %s: %w", asOf.Format("20060102"), storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// SaveUniverse writes universe/kosdaq_{YYYYMMDD}.csv for asOf.
func (s *Store) SaveUniverse(_ context.Context, asOf time.Time, entries []domain.UniverseEntry) error {
	path := s.universePath(asOf)
	if _, err := os.Stat(path); err == nil {
		return storage.ErrDuplicateKey
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ticker", "name"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.Write([]string{e.Ticker, e.Name}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// LatestUniverse scans universe/ for the newest snapshot dated at or
// before asOf.
func (s *Store) LatestUniverse(ctx context.Context, asOf time.Time) ([]domain.UniverseEntry, error) {
	pattern := filepath.Join(s.dir, "universe", "kosdaq_*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var best time.Time
	found := false
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".csv")
		d, err := time.ParseInLocation("20060102", strings.TrimPrefix(base, "kosdaq_"), time.UTC)
		if err != nil {
			continue
		}
		if d.After(asOf) {
			continue
		}
		if !found || d.After(best) {
			best = d
			found = true
		}
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return s.GetUniverse(ctx, best)
}

func (s *Store) universePath(asOf time.Time) string {
	return filepath.Join(s.dir, "universe", "kosdaq_"+asOf.UTC().Format("20060102")+".csv")
}

func readBarFile(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF") // utf-8-sig files

	idx, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		date, err := parseDate(rec[idx["date"]])
		if err != nil {
			return nil, err
		}
		bar := domain.Bar{Date: date}
		if bar.Open, err = parseFloat(rec[idx["open"]]); err != nil {
			return nil, fmt.Errorf("row %s open: %w", rec[idx["date"]], err)
		}
		if bar.High, err = parseFloat(rec[idx["high"]]); err != nil {
			return nil, fmt.Errorf("row %s high: %w", rec[idx["date"]], err)
		}
		if bar.Low, err = parseFloat(rec[idx["low"]]); err != nil {
			return nil, fmt.Errorf("row %s low: %w", rec[idx["date"]], err)
		}
		if bar.Close, err = parseFloat(rec[idx["close"]]); err != nil {
			return nil, fmt.Errorf("row %s close: %w", rec[idx["date"]], err)
		}
		if bar.Volume, err = parseFloat(rec[idx["volume"]]); err != nil {
			return nil, fmt.Errorf("row %s volume: %w", rec[idx["date"]], err)
		}
		if fcol, ok := idx["foreign_net_buy"]; ok && fcol < len(rec) && rec[fcol] != "" {
			if bar.ForeignNetBuy, err = parseFloat(rec[fcol]); err != nil {
				return nil, fmt.Errorf("row %s foreign_net_buy: %w", rec[idx["date"]], err)
			}
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func readUniverseFile(path string) ([]domain.UniverseEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\uFEFF")

	tickerCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "ticker", "symbol", "종목코드":
			tickerCol = i
		case "name", "종목명":
			nameCol = i
		}
	}
	if tickerCol < 0 {
		return nil, fmt.Errorf("no ticker column in %v", header)
	}

	var entries []domain.UniverseEntry
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entry := domain.UniverseEntry{Ticker: padTicker(rec[tickerCol])}
		if nameCol >= 0 && nameCol < len(rec) {
			entry.Name = strings.TrimSpace(rec[nameCol])
		}
		if entry.Ticker != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func resolveColumns(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.TrimSpace(h)] = i
	}

	idx := make(map[string]int)
	for std, aliases := range columnAliases {
		for _, alias := range aliases {
			if col, ok := byName[alias]; ok {
				idx[std] = col
				break
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("required column %q missing (header %v)", col, header)
		}
	}
	return idx, nil
}

// padTicker restores leading zeros a spreadsheet round trip strips
// from six-digit KRX codes.
func padTicker(raw string) string {
	t := strings.TrimSpace(raw)
	if t == "" || len(t) >= 6 {
		return t
	}
	for _, c := range t {
		if c < '0' || c > '9' {
			return t
		}
	}
	return strings.Repeat("0", 6-len(t)) + t
}

func parseDate(raw string) (time.Time, error) {
	v := strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02", "20060102", "2006/01/02"} {
		if d, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseFloat(raw string) (float64, error) {
	v := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	return strconv.ParseFloat(v, 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func filterRange(bars []domain.Bar, from, to time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Date.Before(from) {
			continue
		}
		if !to.IsZero() && b.Date.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
