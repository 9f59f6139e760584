// SimAdapter is a deterministic, in-memory Adapter backed by a pre-loaded
// bar slice (or a CSV file), used for backtest and paper mode and for unit
// tests. It is adapted from the teacher's loadCSV (backtest.go) and
// PaperBroker (broker_paper.go): same "no external calls, single mutable
// price" idea, generalized to return full Adapter-shaped klines instead of a
// single bootstrap price.
package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chidi150c/qengine/internal/bar"
)

// SimAdapter serves klines from an in-memory, time-sorted slice.
type SimAdapter struct {
	name       string
	bars       []bar.Bar
	intervalMs int64
	markPrice  float64 // 0 means "use bar close", per §9
}

// NewSimAdapter builds a SimAdapter over bars, which must already be sorted
// ascending by OpenTimeMs (callers should run bar.ValidateSequence first).
func NewSimAdapter(name string, bars []bar.Bar, intervalMs int64) *SimAdapter {
	return &SimAdapter{name: name, bars: bars, intervalMs: intervalMs}
}

func (s *SimAdapter) Name() string { return s.name }

// SetMarkPrice lets tests or a futures-mode driver override the mark used by
// GetMarkPrice; 0 (the default) means "no live mark, substitute bar close".
func (s *SimAdapter) SetMarkPrice(p float64) { s.markPrice = p }

func (s *SimAdapter) GetKlines(ctx context.Context, symbol bar.Symbol, interval bar.Interval, limit int, startMs, endMs int64) ([]bar.Bar, error) {
	var out []bar.Bar
	for _, b := range s.bars {
		if b.OpenTimeMs < startMs {
			continue
		}
		if endMs > 0 && b.OpenTimeMs >= endMs {
			break
		}
		out = append(out, b)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *SimAdapter) GetTicker(ctx context.Context, symbol bar.Symbol) (Ticker, error) {
	if len(s.bars) == 0 {
		return Ticker{}, &AdapterError{Cause: fmt.Errorf("no bars loaded")}
	}
	last := s.bars[len(s.bars)-1]
	return Ticker{Symbol: symbol, Price: last.Close, TimeMs: last.CloseTimeMs}, nil
}

func (s *SimAdapter) GetMarkPrice(ctx context.Context, symbol bar.Symbol) (float64, error) {
	if s.markPrice > 0 {
		return s.markPrice, nil
	}
	t, err := s.GetTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.Price, nil
}

func (s *SimAdapter) GetFundingRate(ctx context.Context, symbol bar.Symbol) (float64, error) {
	return 0, nil // funding is out of scope for the core engine (§1 Non-goals)
}

var _ FuturesAdapter = (*SimAdapter)(nil)

// LoadCSVBars reads a generic OHLCV CSV (time|timestamp, open, high, low,
// close, volume; unknown columns ignored, headers case-insensitive),
// adapted from the teacher's backtest.go loadCSV.
func LoadCSVBars(path string, intervalMs int64) ([]bar.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []bar.Bar
	var headers []string
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if row == 0 {
			headers = rec
			row++
			continue
		}
		m := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				m[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := firstNonEmptyKey(m, "time", "timestamp")
		op, hp, lp, cp, vp := m["open"], m["high"], m["low"], m["close"], firstNonEmptyKey(m, "volume", "vol")
		if ts == "" || op == "" || cp == "" {
			continue
		}
		openMs, err := parseTimeMs(ts)
		if err != nil {
			continue
		}
		o, _ := strconv.ParseFloat(op, 64)
		h, _ := strconv.ParseFloat(hp, 64)
		l, _ := strconv.ParseFloat(lp, 64)
		c, _ := strconv.ParseFloat(cp, 64)
		v, _ := strconv.ParseFloat(vp, 64)
		out = append(out, bar.Bar{
			OpenTimeMs: openMs, Open: o, High: h, Low: l, Close: c, Volume: v,
			CloseTimeMs: openMs + intervalMs,
		})
		row++
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTimeMs < out[j].OpenTimeMs })
	return out, nil
}

func firstNonEmptyKey(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

func parseTimeMs(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 1e12 { // looks like seconds, not milliseconds
			ms *= 1000
		}
		return ms, nil
	}
	return 0, fmt.Errorf("bad time: %s", s)
}
