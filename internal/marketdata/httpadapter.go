// HTTPAdapter is a generic REST Adapter implementation for the §6 exchange
// adapter interface. It is adapted from the teacher's broker_bridge.go (same
// GET /product, GET /candles shape, same per-request context.Context use)
// but swaps the teacher's bare *http.Client for
// github.com/hashicorp/go-retryablehttp — a direct dependency of
// NimbleMarkets/dbn-go, a full repo in this pack — so transient network
// failures and 429s are retried with exponential back-off below the
// adapter/breaker boundary, exactly where §7 says retries belong.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/chidi150c/qengine/internal/bar"
)

// HTTPAdapter talks to a REST market-data service that exposes
// GET /klines?symbol=&interval=&limit=&start=&end= and GET /ticker?symbol=.
type HTTPAdapter struct {
	name        string
	baseURL     string
	client      *retryablehttp.Client
	quoteAssets []string
}

// NewHTTPAdapter builds an adapter over baseURL that retries a failed
// request up to maxRetries times, with a per-request timeout.
func NewHTTPAdapter(name, baseURL string, maxRetries int, timeout time.Duration) *HTTPAdapter {
	c := retryablehttp.NewClient()
	c.RetryMax = maxRetries
	c.Logger = nil // silence retryablehttp's own logging; the engine logs at the breaker layer
	c.HTTPClient.Timeout = timeout
	return &HTTPAdapter{name: name, baseURL: baseURL, client: c, quoteAssets: bar.DefaultQuoteAssets}
}

func (a *HTTPAdapter) Name() string { return a.name }

func classifyHTTPError(err error, statusCode int) error {
	if err != nil {
		return &NetworkError{Cause: err}
	}
	if statusCode == http.StatusTooManyRequests {
		return &RateLimited{Cause: fmt.Errorf("http %d", statusCode)}
	}
	if statusCode >= 500 {
		return &NetworkError{Cause: fmt.Errorf("http %d", statusCode)}
	}
	if statusCode >= 300 {
		return &AdapterError{Cause: fmt.Errorf("http %d", statusCode)}
	}
	return nil
}

func (a *HTTPAdapter) GetKlines(ctx context.Context, symbol bar.Symbol, interval bar.Interval, limit int, startMs, endMs int64) ([]bar.Bar, error) {
	q := url.Values{}
	q.Set("symbol", string(symbol))
	q.Set("interval", string(interval))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if startMs > 0 {
		q.Set("start", strconv.FormatInt(startMs, 10))
	}
	if endMs > 0 {
		q.Set("end", strconv.FormatInt(endMs, 10))
	}
	u := a.baseURL + "/klines?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &AdapterError{Cause: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError(fmt.Errorf("%s", string(body)), resp.StatusCode)
	}

	// Kline payload format (§6): 11-tuple rows.
	var rows [][]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &AdapterError{Cause: err}
	}

	out := make([]bar.Bar, 0, len(rows))
	for _, row := range rows {
		b, err := decodeKlineRow(row)
		if err != nil {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeKlineRow(row []any) (bar.Bar, error) {
	if len(row) < 7 {
		return bar.Bar{}, fmt.Errorf("kline row too short: %d fields", len(row))
	}
	toF := func(v any) float64 {
		switch t := v.(type) {
		case float64:
			return t
		case string:
			f, _ := strconv.ParseFloat(t, 64)
			return f
		default:
			return 0
		}
	}
	toI := func(v any) int64 {
		switch t := v.(type) {
		case float64:
			return int64(t)
		case string:
			i, _ := strconv.ParseInt(t, 10, 64)
			return i
		default:
			return 0
		}
	}
	b := bar.Bar{
		OpenTimeMs:  toI(row[0]),
		Open:        toF(row[1]),
		High:        toF(row[2]),
		Low:         toF(row[3]),
		Close:       toF(row[4]),
		Volume:      toF(row[5]),
		CloseTimeMs: toI(row[6]),
	}
	if len(row) > 7 {
		b.QuoteVolume = toF(row[7])
	}
	if len(row) > 8 {
		b.TradeCount = toI(row[8])
	}
	return b, nil
}

func (a *HTTPAdapter) GetTicker(ctx context.Context, symbol bar.Symbol) (Ticker, error) {
	u := a.baseURL + "/ticker?symbol=" + url.QueryEscape(string(symbol))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Ticker{}, &AdapterError{Cause: err}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return Ticker{}, &NetworkError{Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return Ticker{}, classifyHTTPError(fmt.Errorf("%s", string(body)), resp.StatusCode)
	}
	var out struct {
		Price string `json:"price"`
		TS    int64  `json:"ts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Ticker{}, &AdapterError{Cause: err}
	}
	price, _ := strconv.ParseFloat(out.Price, 64)
	return Ticker{Symbol: symbol, Price: price, TimeMs: out.TS}, nil
}

// NormalizeSymbol canonicalizes an exchange-native or already-normalized
// symbol on the inbound edge (§3: "only on the inbound edge").
func (a *HTTPAdapter) NormalizeSymbol(raw string) (bar.Symbol, error) {
	return bar.Normalize(raw, a.quoteAssets)
}
