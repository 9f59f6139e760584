// Package bar defines the OHLCV bar type shared by every layer of the
// engine, plus the interval grammar and symbol normalization rules used to
// validate and canonicalize market data on its inbound edge (§3, §6).
package bar

import (
	"fmt"
	"strconv"
	"strings"
)

// Bar is one OHLCV tuple. Times are UTC epoch milliseconds.
type Bar struct {
	OpenTimeMs  int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	CloseTimeMs int64
	QuoteVolume float64 // optional; 0 when unavailable
	TradeCount  int64   // optional; 0 when unavailable
}

// Validate checks the structural invariants of a single bar.
func (b Bar) Validate() error {
	if b.CloseTimeMs <= b.OpenTimeMs {
		return fmt.Errorf("bar: close_time_ms %d must be after open_time_ms %d", b.CloseTimeMs, b.OpenTimeMs)
	}
	if b.High < b.Low {
		return fmt.Errorf("bar: high %.8f below low %.8f", b.High, b.Low)
	}
	return nil
}

// ValidateSequence checks that bars are strictly increasing on open time with
// no duplicates, and — when intervalMs > 0 — that every open time aligns to
// the interval boundary relative to the first bar. Satisfies invariant 4 of
// §8.
func ValidateSequence(bars []Bar, intervalMs int64) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar[%d]: %w", i, err)
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if b.OpenTimeMs <= prev.OpenTimeMs {
			return fmt.Errorf("bar[%d]: open_time_ms %d not strictly after previous %d", i, b.OpenTimeMs, prev.OpenTimeMs)
		}
		if intervalMs > 0 && (b.OpenTimeMs-bars[0].OpenTimeMs)%intervalMs != 0 {
			return fmt.Errorf("bar[%d]: open_time_ms %d not aligned to interval %dms", i, b.OpenTimeMs, intervalMs)
		}
	}
	return nil
}

// Interval is a normalized trading interval, e.g. "1m", "4h", "1d", "1w", "1M".
type Interval string

// unitSeconds maps the unit letter to seconds; month is handled separately.
var unitSeconds = map[byte]int64{'m': 60, 'h': 3600, 'd': 86400, 'w': 604800}

var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true,
	"1w": true,
	"1M": true,
}

// Milliseconds resolves the interval to a duration in milliseconds. Months
// are approximated to 30 days since calendar math is out of scope for the
// core engine (§6: "month handled separately by calendar math" — callers
// needing exact calendar months should not rely on this helper for "1M").
func (iv Interval) Milliseconds() (int64, error) {
	s := string(iv)
	if !validIntervals[s] {
		return 0, fmt.Errorf("interval: %q is not in the supported grammar", s)
	}
	if s == "1M" {
		return 30 * 86400 * 1000, nil
	}
	unit := s[len(s)-1]
	qty, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("interval: %q: %w", s, err)
	}
	sec, ok := unitSeconds[unit]
	if !ok {
		return 0, fmt.Errorf("interval: %q has unknown unit %q", s, string(unit))
	}
	return qty * sec * 1000, nil
}

// ParseInterval validates s against the supported grammar (§6).
func ParseInterval(s string) (Interval, error) {
	if !validIntervals[s] {
		return "", fmt.Errorf("interval: %q is not in the supported grammar", s)
	}
	return Interval(s), nil
}

// Symbol is a normalized instrument identifier, e.g. "BTC/USDT".
type Symbol string

// Normalize canonicalizes an exchange-native symbol ("BTCUSDT") or an
// already-normalized one ("BTC/USDT") to the normal form "BASE/QUOTE".
// quoteAssets lists known quote suffixes, longest first, so adapters can
// split concatenated native symbols without a separator.
func Normalize(raw string, quoteAssets []string) (Symbol, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", fmt.Errorf("symbol: empty")
	}
	if strings.Contains(raw, "/") {
		parts := strings.SplitN(raw, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", fmt.Errorf("symbol: malformed %q", raw)
		}
		return Symbol(parts[0] + "/" + parts[1]), nil
	}
	if strings.Contains(raw, "-") {
		parts := strings.SplitN(raw, "-", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return "", fmt.Errorf("symbol: malformed %q", raw)
		}
		return Symbol(parts[0] + "/" + parts[1]), nil
	}
	for _, q := range quoteAssets {
		if strings.HasSuffix(raw, q) && len(raw) > len(q) {
			return Symbol(raw[:len(raw)-len(q)] + "/" + q), nil
		}
	}
	return "", fmt.Errorf("symbol: could not split %q into base/quote", raw)
}

// DefaultQuoteAssets is a reasonable default suffix list for Normalize, ordered
// longest-first so "USDT" is tried before "USD".
var DefaultQuoteAssets = []string{"USDT", "BUSD", "USDC", "USD", "EUR", "BTC"}
