// Loader implements the streaming bar loader of §4.D: a bounded-batch
// iterator over a half-open time range that, when preloading is enabled,
// concurrently fetches the next batch while the consumer drains the current
// one. Prefetch concurrency uses golang.org/x/sync/errgroup, a direct
// dependency of stadam23/Eve-flipper (a repo in this pack).
package marketdata

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/chidi150c/qengine/internal/bar"
)

// Loader yields bars from start (inclusive) to end (exclusive) in batches.
type Loader struct {
	dc       *DataCenter
	req      MarketDataRequest
	batch    int
	preload  bool
	log      *slog.Logger

	intervalMs int64
	cursor     int64
	end        int64

	current []bar.Bar
	curIdx  int

	nextBatchCh chan fetchResult
	done        bool
}

type fetchResult struct {
	bars []bar.Bar
	err  error
}

// NewLoader constructs a loader over [startMs, endMs) with the given batch
// size and prefetch setting (§4.D).
func NewLoader(dc *DataCenter, req MarketDataRequest, batchSize int, preloadEnabled bool, log *slog.Logger) (*Loader, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	intervalMs, err := req.Interval.Milliseconds()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		dc: dc, req: req, batch: batchSize, preload: preloadEnabled, log: log,
		intervalMs: intervalMs, cursor: req.StartMs, end: req.EndMs,
	}, nil
}

// fetchBatch pulls up to l.batch bars starting at 'from'.
func (l *Loader) fetchBatch(ctx context.Context, from int64) ([]bar.Bar, error) {
	r := l.req
	r.StartMs = from
	r.Limit = l.batch
	resp, err := l.dc.GetMarketData(ctx, r)
	if err != nil {
		return nil, err
	}
	out := make([]bar.Bar, 0, resp.Metadata.Count)
	for i := 0; i < resp.Metadata.Count; i++ {
		ts := resp.OHLCV.Timestamps[i]
		if l.end > 0 && ts >= l.end {
			break
		}
		out = append(out, bar.Bar{
			OpenTimeMs:  ts,
			Open:        resp.OHLCV.Open[i],
			High:        resp.OHLCV.High[i],
			Low:         resp.OHLCV.Low[i],
			Close:       resp.OHLCV.Close[i],
			Volume:      resp.OHLCV.Volume[i],
			CloseTimeMs: ts + l.intervalMs,
		})
	}
	return dedupSorted(out), nil
}

func dedupSorted(bars []bar.Bar) []bar.Bar {
	out := bars[:0:0]
	var lastTs int64 = -1
	for _, b := range bars {
		if b.OpenTimeMs == lastTs {
			continue
		}
		out = append(out, b)
		lastTs = b.OpenTimeMs
	}
	return out
}

// startPrefetch kicks off a background fetch of the batch starting at from,
// delivered asynchronously on l.nextBatchCh.
func (l *Loader) startPrefetch(ctx context.Context, from int64) {
	l.nextBatchCh = make(chan fetchResult, 1)
	go func() {
		var g errgroup.Group
		var res fetchResult
		g.Go(func() error {
			bars, err := l.fetchBatch(ctx, from)
			res = fetchResult{bars: bars, err: err}
			return err
		})
		_ = g.Wait()
		l.nextBatchCh <- res
	}()
}

// Next returns the next bar in sequence, or ok=false once the range is
// exhausted (§4.D: "Termination is clean when a fetch returns zero bars past
// the cursor or the cursor reaches end_ms").
func (l *Loader) Next(ctx context.Context) (b bar.Bar, ok bool, err error) {
	for {
		if l.curIdx < len(l.current) {
			b = l.current[l.curIdx]
			l.curIdx++
			if l.curIdx == len(l.current) && l.preload && !l.done {
				// current batch about to be exhausted; prefetch is already
				// in flight from when this batch was loaded.
			}
			return b, true, nil
		}
		if l.done {
			return bar.Bar{}, false, nil
		}
		if l.end > 0 && l.cursor >= l.end {
			l.done = true
			return bar.Bar{}, false, nil
		}

		var res fetchResult
		if l.nextBatchCh != nil {
			select {
			case res = <-l.nextBatchCh:
			case <-ctx.Done():
				return bar.Bar{}, false, ctx.Err()
			}
			l.nextBatchCh = nil
		} else {
			bars, ferr := l.fetchBatch(ctx, l.cursor)
			res = fetchResult{bars: bars, err: ferr}
		}
		if res.err != nil {
			return bar.Bar{}, false, fmt.Errorf("loader: %w", res.err)
		}
		if len(res.bars) == 0 {
			l.done = true
			return bar.Bar{}, false, nil
		}

		l.current = res.bars
		l.curIdx = 0
		lastOpen := res.bars[len(res.bars)-1].OpenTimeMs
		l.cursor = lastOpen + l.intervalMs

		if l.preload && !(l.end > 0 && l.cursor >= l.end) {
			l.startPrefetch(ctx, l.cursor)
		}
	}
}

// Collect drains the loader entirely; intended for tests and for backtest
// driving where the full range is known to fit in memory.
func (l *Loader) Collect(ctx context.Context) ([]bar.Bar, error) {
	var out []bar.Bar
	for {
		b, ok, err := l.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, b)
	}
}
