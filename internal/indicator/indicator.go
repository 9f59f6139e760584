// Package indicator implements the precompute stage of spec §4.E: given a
// closed set of indicator specs and an OHLCV window, it produces aligned
// arrays so that indicators[name][i] corresponds to market_data.close[i],
// with leading warm-up values represented as NaN until the indicator's
// minimum sample count is reached.
//
// Computation is delegated to github.com/markcheno/go-talib wherever it
// offers the series (SMA/EMA/RSI/MACD/ATR/OBV), grounded on its appearance in
// the abdoElHodaky/tradSys manifest — a risk/trading engine in this
// retrieval pack whose domain matches this component closely. From the
// teacher's own indicators.go (SMA/RSI/ZScore) only the rolling z-score is
// kept, since go-talib has no direct z-score function; its hand-rolled
// SMA/RSI are not carried over.
package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// Spec names one indicator and its parameters. The set of Specs is closed
// per run (§4.E): "adding new ones at runtime is out of scope".
type Spec struct {
	Name   string // e.g. "sma20", "rsi14", "macd", "atr14", "obv", "zscore20"
	Kind   Kind
	Period int // primary lookback; meaning depends on Kind
}

// Kind enumerates the supported indicator families.
type Kind string

const (
	KindSMA    Kind = "sma"
	KindEMA    Kind = "ema"
	KindRSI    Kind = "rsi"
	KindMACD   Kind = "macd"
	KindATR    Kind = "atr"
	KindOBV    Kind = "obv"
	KindZScore Kind = "zscore"
)

// Set holds the closed collection of specs for a run and precomputes their
// arrays against an OHLCV window.
type Set struct {
	specs []Spec
}

// NewSet validates specs and builds a precompute Set.
func NewSet(specs []Spec) (*Set, error) {
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("indicator: spec missing name")
		}
		switch s.Kind {
		case KindSMA, KindEMA, KindRSI, KindATR, KindZScore:
			if s.Period <= 0 {
				return nil, fmt.Errorf("indicator: %s requires a positive period", s.Name)
			}
		case KindMACD, KindOBV:
			// MACD uses fixed 12/26/9 defaults; OBV takes no period.
		default:
			return nil, fmt.Errorf("indicator: unknown kind %q for %s", s.Kind, s.Name)
		}
	}
	return &Set{specs: specs}, nil
}

// Window is the minimal OHLCV shape the precompute stage needs; it mirrors
// marketdata.OHLCV without importing that package, keeping indicator
// dependency-free of the data layer (it only needs arrays).
type Window struct {
	Open, High, Low, Close, Volume []float64
}

// Compute returns, for each configured spec, an array aligned to len(w.Close)
// with NaN in warm-up positions.
func (s *Set) Compute(w Window) (map[string][]float64, error) {
	n := len(w.Close)
	out := make(map[string][]float64, len(s.specs))
	for _, spec := range s.specs {
		var series []float64
		switch spec.Kind {
		case KindSMA:
			series = talib.Sma(w.Close, spec.Period)
		case KindEMA:
			series = talib.Ema(w.Close, spec.Period, 0)
		case KindRSI:
			series = talib.Rsi(w.Close, spec.Period)
		case KindMACD:
			macd, _, _ := talib.Macd(w.Close, 12, 26, 9)
			series = macd
		case KindATR:
			if len(w.High) != n || len(w.Low) != n {
				return nil, fmt.Errorf("indicator: %s requires high/low arrays aligned to close", spec.Name)
			}
			series = talib.Atr(w.High, w.Low, w.Close, spec.Period)
		case KindOBV:
			if len(w.Volume) != n {
				return nil, fmt.Errorf("indicator: %s requires a volume array aligned to close", spec.Name)
			}
			series = talib.Obv(w.Close, w.Volume)
		case KindZScore:
			series = zscore(w.Close, spec.Period)
		}
		out[spec.Name] = normalizeWarmup(series, n, minSamples(spec))
	}
	return out, nil
}

// minSamples is the minimum sample count before a series is considered past
// warm-up, per spec §4.E.
func minSamples(spec Spec) int {
	switch spec.Kind {
	case KindMACD:
		return 26 + 9 - 1
	case KindOBV:
		return 1
	case KindRSI, KindATR:
		// talib's RSI and ATR emit their first value at index period.
		return spec.Period + 1
	default:
		return spec.Period
	}
}

// normalizeWarmup pads/truncates series to length n and forces any position
// before minSamples-1 to NaN, since talib's own warm-up convention (zero,
// not NaN) doesn't match §4.E's "not-a-number" sentinel requirement.
func normalizeWarmup(series []float64, n, minSamples int) []float64 {
	out := make([]float64, n)
	offset := n - len(series)
	for i := 0; i < n; i++ {
		if i < minSamples-1 {
			out[i] = math.NaN()
			continue
		}
		srcIdx := i - offset
		if srcIdx < 0 || srcIdx >= len(series) {
			out[i] = math.NaN()
			continue
		}
		v := series[srcIdx]
		if math.IsNaN(v) {
			out[i] = math.NaN()
		} else {
			out[i] = v
		}
	}
	return out
}

// zscore is adapted verbatim in algorithm from the teacher's indicators.go
// ZScore (rolling mean/variance via a moving sum), generalized to emit NaN
// instead of 0 for warm-up positions so it matches every other indicator's
// sentinel convention in this package.
func zscore(close []float64, n int) []float64 {
	out := make([]float64, len(close))
	if n <= 1 || len(close) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var sum, sumSq float64
	for i := range close {
		x := close[i]
		sum += x
		sumSq += x * x
		if i >= n {
			y := close[i-n]
			sum -= y
			sumSq -= y * y
		}
		if i >= n-1 {
			mean := sum / float64(n)
			variance := (sumSq / float64(n)) - (mean * mean)
			std := math.Sqrt(math.Max(variance, 1e-12))
			out[i] = (x - mean) / std
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
