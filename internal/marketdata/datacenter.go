// DataCenter is the facade of §4.C: it composes an adapter registry (keyed
// by exchange+market-type) with the cache and circuit breaker of this
// package, and exposes the single get_market_data request model the rest of
// the engine depends on.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chidi150c/qengine/internal/bar"
)

// MarketType distinguishes spot/event-contract data from futures data, since
// a futures adapter additionally serves mark price and funding rate.
type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// AdapterKey identifies one adapter in the registry.
type AdapterKey struct {
	Exchange   string
	MarketType MarketType
}

// MarketDataRequest is the single request model get_market_data accepts.
type MarketDataRequest struct {
	Exchange   string
	MarketType MarketType
	Symbol     bar.Symbol
	Interval   bar.Interval
	Limit      int
	StartMs    int64
	EndMs      int64
}

// OHLCV is the columnar view get_market_data returns (§4.C).
type OHLCV struct {
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
	Timestamps []int64 // open_time_ms, aligned index-for-index with the above
}

// Metadata describes the returned window (§4.C).
type Metadata struct {
	Symbol   bar.Symbol
	Interval bar.Interval
	Count    int
	// UsesBarCloseAsMark is true when the serving adapter does not implement
	// FuturesAdapter, so callers must substitute bar close as mark (§9).
	// SimAdapter implements FuturesAdapter and so reports false, although its
	// mark price falls back to the last loaded bar's close.
	UsesBarCloseAsMark bool
}

// MarketDataResponse is get_market_data's return value.
type MarketDataResponse struct {
	OHLCV    OHLCV
	Metadata Metadata
}

// DataCenter composes adapters A with the cache+breaker gate B (§4.C).
type DataCenter struct {
	adapters map[AdapterKey]Adapter
	cache    *Cache
	breakers *BreakerRegistry
	cacheOn  bool
	log      *slog.Logger
}

// NewDataCenter builds a facade over the given adapter registry.
func NewDataCenter(adapters map[AdapterKey]Adapter, cache *Cache, breakers *BreakerRegistry, cacheEnabled bool, log *slog.Logger) *DataCenter {
	if log == nil {
		log = slog.Default()
	}
	return &DataCenter{adapters: adapters, cache: cache, breakers: breakers, cacheOn: cacheEnabled, log: log}
}

func (dc *DataCenter) adapterFor(req MarketDataRequest) (Adapter, error) {
	a, ok := dc.adapters[AdapterKey{Exchange: req.Exchange, MarketType: req.MarketType}]
	if !ok {
		return nil, fmt.Errorf("marketdata: no adapter registered for exchange=%s market_type=%s", req.Exchange, req.MarketType)
	}
	return a, nil
}

func serviceName(req MarketDataRequest) string {
	return fmt.Sprintf("%s:%s", req.Exchange, req.MarketType)
}

// GetMarketData fetches (cache-first, breaker-gated) a bar window and
// reshapes it into columnar OHLCV plus metadata (§4.C).
func (dc *DataCenter) GetMarketData(ctx context.Context, req MarketDataRequest) (MarketDataResponse, error) {
	adapter, err := dc.adapterFor(req)
	if err != nil {
		return MarketDataResponse{}, err
	}

	key := CacheKey{Service: serviceName(req), Symbol: req.Symbol, Interval: req.Interval, Limit: req.Limit, StartMs: req.StartMs, EndMs: req.EndMs}
	if dc.cacheOn {
		if bars, ok := dc.cache.Get(key); ok {
			dc.log.Debug("marketdata cache hit", "key", key.String())
			return toResponse(req, bars, adapter), nil
		}
	}

	result, err := dc.breakers.Execute(ctx, serviceName(req), func(ctx context.Context) (any, error) {
		return adapter.GetKlines(ctx, req.Symbol, req.Interval, req.Limit, req.StartMs, req.EndMs)
	})
	if err != nil {
		return MarketDataResponse{}, fmt.Errorf("marketdata: fetch %s: %w", req.Symbol, err)
	}
	bars := result.([]bar.Bar)

	if dc.cacheOn {
		dc.cache.Put(key, bars)
	}
	return toResponse(req, bars, adapter), nil
}

func toResponse(req MarketDataRequest, bars []bar.Bar, adapter Adapter) MarketDataResponse {
	o := OHLCV{
		Open:       make([]float64, len(bars)),
		High:       make([]float64, len(bars)),
		Low:        make([]float64, len(bars)),
		Close:      make([]float64, len(bars)),
		Volume:     make([]float64, len(bars)),
		Timestamps: make([]int64, len(bars)),
	}
	for i, b := range bars {
		o.Open[i] = b.Open
		o.High[i] = b.High
		o.Low[i] = b.Low
		o.Close[i] = b.Close
		o.Volume[i] = b.Volume
		o.Timestamps[i] = b.OpenTimeMs
	}
	_, isFutures := adapter.(FuturesAdapter)
	return MarketDataResponse{
		OHLCV: o,
		Metadata: Metadata{
			Symbol:             req.Symbol,
			Interval:           req.Interval,
			Count:              len(bars),
			UsesBarCloseAsMark: !isFutures,
		},
	}
}

// GetHistoricalKlinesBatch pages through history in up to maxRequests calls,
// stitching results in time order with duplicate suppression on open_time
// (§4.C).
func (dc *DataCenter) GetHistoricalKlinesBatch(ctx context.Context, req MarketDataRequest, maxRequests int) ([]bar.Bar, error) {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	intervalMs, err := req.Interval.Milliseconds()
	if err != nil {
		return nil, err
	}

	var out []bar.Bar
	seen := make(map[int64]struct{})
	cursor := req.StartMs

	for page := 0; page < maxRequests; page++ {
		if req.EndMs > 0 && cursor >= req.EndMs {
			break
		}
		pageReq := req
		pageReq.StartMs = cursor
		resp, err := dc.GetMarketData(ctx, pageReq)
		if err != nil {
			return nil, err
		}
		if resp.Metadata.Count == 0 {
			break
		}
		lastTs := resp.OHLCV.Timestamps[resp.Metadata.Count-1]
		for i := 0; i < resp.Metadata.Count; i++ {
			ts := resp.OHLCV.Timestamps[i]
			if req.EndMs > 0 && ts >= req.EndMs {
				break
			}
			if _, dup := seen[ts]; dup {
				continue
			}
			seen[ts] = struct{}{}
			out = append(out, bar.Bar{
				OpenTimeMs: ts,
				Open:       resp.OHLCV.Open[i],
				High:       resp.OHLCV.High[i],
				Low:        resp.OHLCV.Low[i],
				Close:      resp.OHLCV.Close[i],
				Volume:     resp.OHLCV.Volume[i],
				CloseTimeMs: ts + intervalMs,
			})
		}
		nextCursor := lastTs + intervalMs
		if nextCursor <= cursor {
			break // adapter made no forward progress; stop to avoid an infinite loop
		}
		cursor = nextCursor
	}
	return out, nil
}

// WithTimeout is a convenience for callers that want a bounded context per
// request without importing context/time at the call site.
func WithTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		seconds = 15
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}
