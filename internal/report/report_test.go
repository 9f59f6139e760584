package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/qengine/internal/trade"
)

func TestBuildZeroTradesHasZeroRatios(t *testing.T) {
	r := Build(10000, 10000, nil, nil, DefaultConfig())
	require.Equal(t, 0.0, r.TotalReturn)
	require.Equal(t, 0.0, r.WinRate)
	require.Equal(t, 0.0, r.Sharpe)
	require.Equal(t, 0.0, r.Sortino)
	require.Equal(t, 0, r.TotalTrades)
}

func TestBuildProfitFactorInfinityWithNoLosses(t *testing.T) {
	trades := []trade.Record{
		{PnL: 50},
		{PnL: 30},
	}
	r := Build(10000, 10080, trades, nil, DefaultConfig())
	require.True(t, math.IsInf(r.ProfitFactor, 1))
	require.Equal(t, 2, r.WinningTrades)
	require.Equal(t, 0, r.LosingTrades)
	require.InDelta(t, 1.0, r.WinRate, 1e-9)
}

func TestBuildWinLossSplit(t *testing.T) {
	trades := []trade.Record{
		{PnL: 100},
		{PnL: -50},
		{PnL: -25},
	}
	r := Build(10000, 10025, trades, nil, DefaultConfig())
	require.Equal(t, 3, r.TotalTrades)
	require.Equal(t, 1, r.WinningTrades)
	require.Equal(t, 2, r.LosingTrades)
	require.InDelta(t, 100.0, r.AvgWin, 1e-9)
	require.InDelta(t, -37.5, r.AvgLoss, 1e-9)
	require.InDelta(t, 100.0/75.0, r.ProfitFactor, 1e-9)
}

func TestMaxDrawdownPctIsMonotoneAgainstRunningPeak(t *testing.T) {
	equity := []EquityPoint{
		{TimestampMs: 0, Equity: 10000},
		{TimestampMs: 1000, Equity: 11000},
		{TimestampMs: 2000, Equity: 9000},
		{TimestampMs: 3000, Equity: 10500},
	}
	r := Build(10000, 10500, nil, equity, DefaultConfig())
	require.InDelta(t, (11000.0-9000.0)/11000.0, r.MaxDrawdownPct, 1e-9)
}

func TestBuildTotalReturn(t *testing.T) {
	r := Build(10000, 11000, nil, nil, DefaultConfig())
	require.InDelta(t, 0.1, r.TotalReturn, 1e-9)
}
