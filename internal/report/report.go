// Package report builds the final run report of spec §4.M by folding trade
// records and the equity curve into return, drawdown, and risk-adjusted
// performance statistics.
//
// Grounded on the teacher's no-equivalent reporting (the teacher logs
// per-exit lines and exposes Prometheus gauges but never aggregates a report
// struct); this package is grounded on the pack's use of `gonum.org/v1/gonum/stat`
// (abdoElHodaky/tradSys manifest) for the mean/stdev Sharpe/Sortino need, with
// the aggregation shape (win rate, profit factor, drawdown) following the
// teacher's own per-exit bookkeeping fields (EntryFeeUSD/ExitFeeUSD/PNLUSD in
// trader.go's ExitRecord) rolled up across the whole trade set.
package report

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chidi150c/qengine/internal/trade"
)

// EquityPoint is one sample of the equity curve (spec §3).
type EquityPoint struct {
	TimestampMs   int64
	Equity        float64
	Drawdown      float64
	DrawdownPct   float64
}

// Config tunes statistics the report computes.
type Config struct {
	// AnnualizationFactor is N in Sharpe = mean(r)/stdev(r) * sqrt(N); 365
	// for daily-resampled returns (spec §4.M).
	AnnualizationFactor float64
}

// DefaultConfig uses the daily resampling spec §4.M describes.
func DefaultConfig() Config {
	return Config{AnnualizationFactor: 365}
}

// Report is the aggregated run output (spec §4.M).
type Report struct {
	InitialCapital  float64
	FinalCapital    float64
	TotalReturn     float64
	AnnualReturn    float64
	WinRate         float64
	AvgWin          float64
	AvgLoss         float64
	ProfitFactor    float64
	MaxDrawdownPct  float64
	Sharpe          float64
	Sortino         float64
	Calmar          float64
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	DurationDays    float64
}

// Build computes the report per spec §4.M.
func Build(initialCapital, finalCapital float64, trades []trade.Record, equity []EquityPoint, cfg Config) Report {
	r := Report{InitialCapital: initialCapital, FinalCapital: finalCapital}

	if initialCapital != 0 {
		r.TotalReturn = (finalCapital - initialCapital) / initialCapital
	}

	if len(equity) >= 2 {
		startMs := equity[0].TimestampMs
		endMs := equity[len(equity)-1].TimestampMs
		r.DurationDays = float64(endMs-startMs) / float64(86400000)
	}
	if r.DurationDays > 0 {
		r.AnnualReturn = math.Pow(1+r.TotalReturn, 365/r.DurationDays) - 1
	}

	var gains, losses float64
	for _, t := range trades {
		r.TotalTrades++
		if t.PnL > 0 {
			r.WinningTrades++
			gains += t.PnL
		} else if t.PnL < 0 {
			r.LosingTrades++
			losses += -t.PnL
		}
	}
	if r.TotalTrades > 0 {
		r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades)
	}
	if r.WinningTrades > 0 {
		r.AvgWin = gains / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = -losses / float64(r.LosingTrades)
	}
	switch {
	case losses == 0 && gains > 0:
		r.ProfitFactor = math.Inf(1)
	case losses == 0:
		r.ProfitFactor = 0
	default:
		r.ProfitFactor = gains / losses
	}

	r.MaxDrawdownPct = maxDrawdownPct(equity)

	dailyReturns := resampleDailyReturns(equity)
	r.Sharpe = sharpe(dailyReturns, cfg.AnnualizationFactor)
	r.Sortino = sortino(dailyReturns, cfg.AnnualizationFactor)
	if r.MaxDrawdownPct > 0 {
		r.Calmar = r.AnnualReturn / r.MaxDrawdownPct
	}

	return r
}

// maxDrawdownPct returns max_i (peak_i - equity_i)/peak_i over the curve
// (spec §4.M, property §8.9 relies on equity's own running peak already
// being monotone non-decreasing).
func maxDrawdownPct(equity []EquityPoint) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// resampleDailyReturns buckets the equity curve to UTC days and returns the
// series of daily fractional deltas (spec §4.M "returns series = daily
// deltas of the equity curve resampled to UTC days").
func resampleDailyReturns(equity []EquityPoint) []float64 {
	if len(equity) == 0 {
		return nil
	}
	type bucket struct {
		date string
		last float64
	}
	var buckets []bucket
	seen := map[string]int{}
	for _, p := range equity {
		date := time.UnixMilli(p.TimestampMs).UTC().Format("2006-01-02")
		if idx, ok := seen[date]; ok {
			buckets[idx].last = p.Equity
			continue
		}
		seen[date] = len(buckets)
		buckets = append(buckets, bucket{date: date, last: p.Equity})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].date < buckets[j].date })

	var returns []float64
	for i := 1; i < len(buckets); i++ {
		prev := buckets[i-1].last
		if prev == 0 {
			continue
		}
		returns = append(returns, (buckets[i].last-prev)/prev)
	}
	return returns
}

// sharpe computes mean(r)/stdev(r) * sqrt(N), reporting 0 when stdev is zero
// (spec §4.M: "All ratios report 0 (not NaN) when their denominator is zero").
func sharpe(r []float64, n float64) float64 {
	if len(r) < 2 {
		return 0
	}
	mean := stat.Mean(r, nil)
	sd := stat.StdDev(r, nil)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(n)
}

// sortino is sharpe but the denominator uses only negative returns (spec §4.M).
func sortino(r []float64, n float64) float64 {
	if len(r) < 2 {
		return 0
	}
	mean := stat.Mean(r, nil)
	var neg []float64
	for _, v := range r {
		if v < 0 {
			neg = append(neg, v)
		}
	}
	if len(neg) < 2 {
		return 0
	}
	sd := stat.StdDev(neg, nil)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(n)
}
