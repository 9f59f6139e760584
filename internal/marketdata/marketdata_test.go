package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/qengine/internal/bar"
)

func makeBars(n int, startMs, intervalMs int64, base float64) []bar.Bar {
	out := make([]bar.Bar, n)
	for i := 0; i < n; i++ {
		open := base + float64(i)
		out[i] = bar.Bar{
			OpenTimeMs:  startMs + int64(i)*intervalMs,
			Open:        open,
			High:        open + 1,
			Low:         open - 1,
			Close:       open + 0.5,
			Volume:      100,
			CloseTimeMs: startMs + int64(i+1)*intervalMs,
		}
	}
	return out
}

func TestCacheRoundTripAndTTLExpiry(t *testing.T) {
	c := NewCache(20*time.Millisecond, 10)
	key := CacheKey{Service: "svc", Symbol: "BTC/USDT", Interval: "1m", Limit: 10}
	bars := makeBars(3, 0, 60000, 100)

	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, bars)
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Equal(t, bars, got)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get(key)
	require.False(t, ok, "expired entry must miss")
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Put(CacheKey{Service: "a"}, makeBars(1, 0, 60000, 1))
	c.Put(CacheKey{Service: "b"}, makeBars(1, 0, 60000, 1))
	c.Put(CacheKey{Service: "c"}, makeBars(1, 0, 60000, 1)) // evicts "a" (least recently used)

	_, ok := c.Get(CacheKey{Service: "a"})
	require.False(t, ok)
	_, ok = c.Get(CacheKey{Service: "c"})
	require.True(t, ok)
}

type flakyAdapter struct {
	failures int
	calls    int
}

func (f *flakyAdapter) Name() string { return "flaky" }
func (f *flakyAdapter) GetKlines(ctx context.Context, symbol bar.Symbol, interval bar.Interval, limit int, startMs, endMs int64) ([]bar.Bar, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &NetworkError{Cause: errors.New("boom")}
	}
	return makeBars(1, startMs, 60000, 100), nil
}
func (f *flakyAdapter) GetTicker(ctx context.Context, symbol bar.Symbol) (Ticker, error) {
	return Ticker{}, nil
}

func TestBreakerRetriesThenSucceeds(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 10, Cooldown: time.Second, MaxRetries: 3, RetryBaseDelay: time.Millisecond})
	f := &flakyAdapter{failures: 2}

	result, err := reg.Execute(context.Background(), "svc", func(ctx context.Context) (any, error) {
		return f.GetKlines(ctx, "BTC/USDT", "1m", 10, 0, 0)
	})
	require.NoError(t, err)
	require.Len(t, result.([]bar.Bar), 1)
	require.Equal(t, 3, f.calls)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour, MaxRetries: 1, RetryBaseDelay: time.Millisecond})
	f := &flakyAdapter{failures: 100}

	for i := 0; i < 2; i++ {
		_, err := reg.Execute(context.Background(), "svc2", func(ctx context.Context) (any, error) {
			return f.GetKlines(ctx, "BTC/USDT", "1m", 10, 0, 0)
		})
		require.Error(t, err)
	}

	callsBeforeOpen := f.calls
	_, err := reg.Execute(context.Background(), "svc2", func(ctx context.Context) (any, error) {
		return f.GetKlines(ctx, "BTC/USDT", "1m", 10, 0, 0)
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, callsBeforeOpen, f.calls, "adapter must not be called while OPEN")
}

func TestDataCenterGetMarketDataCachesOnFirstCall(t *testing.T) {
	adapters := map[AdapterKey]Adapter{
		{Exchange: "sim", MarketType: MarketSpot}: NewSimAdapter("sim", makeBars(5, 0, 60000, 100), 60000),
	}
	dc := NewDataCenter(adapters, NewCache(time.Minute, 10), NewBreakerRegistry(BreakerConfig{}), true, nil)

	req := MarketDataRequest{Exchange: "sim", MarketType: MarketSpot, Symbol: "BTC/USDT", Interval: "1m", Limit: 5}
	resp1, err := dc.GetMarketData(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 5, resp1.Metadata.Count)

	hits, _ := dc.cache.Stats()
	require.Equal(t, 0, hits)

	resp2, err := dc.GetMarketData(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, resp1.OHLCV, resp2.OHLCV)

	hits, _ = dc.cache.Stats()
	require.Equal(t, 1, hits)
}

func TestLoaderYieldsStrictlyIncreasingBars(t *testing.T) {
	adapters := map[AdapterKey]Adapter{
		{Exchange: "sim", MarketType: MarketSpot}: NewSimAdapter("sim", makeBars(25, 0, 60000, 100), 60000),
	}
	dc := NewDataCenter(adapters, NewCache(time.Minute, 10), NewBreakerRegistry(BreakerConfig{}), false, nil)

	req := MarketDataRequest{Exchange: "sim", MarketType: MarketSpot, Symbol: "BTC/USDT", Interval: "1m", EndMs: 25 * 60000}
	loader, err := NewLoader(dc, req, 7, true, nil)
	require.NoError(t, err)

	bars, err := loader.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, bars, 25)
	require.NoError(t, bar.ValidateSequence(bars, 60000))
}

func TestGetHistoricalKlinesBatchDedupesAndStitches(t *testing.T) {
	adapters := map[AdapterKey]Adapter{
		{Exchange: "sim", MarketType: MarketSpot}: NewSimAdapter("sim", makeBars(12, 0, 60000, 100), 60000),
	}
	dc := NewDataCenter(adapters, NewCache(time.Minute, 10), NewBreakerRegistry(BreakerConfig{}), false, nil)

	req := MarketDataRequest{Exchange: "sim", MarketType: MarketSpot, Symbol: "BTC/USDT", Interval: "1m", Limit: 5, StartMs: 0, EndMs: 12 * 60000}
	bars, err := dc.GetHistoricalKlinesBatch(context.Background(), req, 10)
	require.NoError(t, err)
	require.Len(t, bars, 12)
	require.NoError(t, bar.ValidateSequence(bars, 60000))
}
