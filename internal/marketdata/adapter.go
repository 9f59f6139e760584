// Package marketdata implements the data-ingestion layer (§4.A-D): exchange
// adapters, the TTL/LRU cache and circuit breaker that front them, the data
// center facade, and the streaming bar loader.
package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/chidi150c/qengine/internal/bar"
)

// Failure kinds (§4.A, §7). These wrap an underlying cause and are detected
// with errors.As, never by string matching.
type NetworkError struct{ Cause error }

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Cause) }
func (e *NetworkError) Unwrap() error { return e.Cause }

type AdapterError struct{ Cause error }

func (e *AdapterError) Error() string { return fmt.Sprintf("adapter error: %v", e.Cause) }
func (e *AdapterError) Unwrap() error { return e.Cause }

type RateLimited struct{ Cause error }

func (e *RateLimited) Error() string { return fmt.Sprintf("rate limited: %v", e.Cause) }
func (e *RateLimited) Unwrap() error { return e.Cause }

// ErrCircuitOpen is returned by the breaker gate while OPEN (§4.B, §7).
var ErrCircuitOpen = errors.New("circuit open")

// Retryable reports whether err is a kind the adapter layer may retry
// (§4.B: "Retries wrap the adapter call ... for retryable failures only").
func Retryable(err error) bool {
	var net *NetworkError
	var rl *RateLimited
	return errors.As(err, &net) || errors.As(err, &rl)
}

// Ticker is a last-trade snapshot (§6 exchange adapter interface).
type Ticker struct {
	Symbol bar.Symbol
	Price  float64
	TimeMs int64
}

// Adapter is the capability set of §4.A: normalize symbols, fetch klines and
// a ticker; futures-capable adapters additionally implement FuturesAdapter.
type Adapter interface {
	// Name identifies the adapter for cache keys and logging.
	Name() string
	// GetKlines returns bars sorted ascending by open time, never more than
	// limit bars, restricted to [startMs, endMs) when both are non-zero.
	GetKlines(ctx context.Context, symbol bar.Symbol, interval bar.Interval, limit int, startMs, endMs int64) ([]bar.Bar, error)
	GetTicker(ctx context.Context, symbol bar.Symbol) (Ticker, error)
}

// FuturesAdapter extends Adapter with mark-price and funding-rate reads
// (§4.A) needed by futures-margined instruments.
type FuturesAdapter interface {
	Adapter
	GetMarkPrice(ctx context.Context, symbol bar.Symbol) (float64, error)
	GetFundingRate(ctx context.Context, symbol bar.Symbol) (float64, error)
}
