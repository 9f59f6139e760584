package trader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/qengine/internal/account"
	"github.com/chidi150c/qengine/internal/position"
	"github.com/chidi150c/qengine/internal/strategy"
)

// TestEventsWin reproduces spec §8 scenario E1.
func TestEventsWin(t *testing.T) {
	acct := account.NewSimple(1000)
	cfg := EventsConfig{InvestmentAmount: 100, PayoutMultiplier: 1.8}

	sig := strategy.Signal{Action: strategy.ActionUp, Symbol: "BTC/USDT", Quantity: 100, Confidence: 1}
	pos, err := OpenEvent(sig, acct, cfg, 1000)
	require.NoError(t, err)
	require.Equal(t, 900.0, acct.Balance())

	rec := ResolveEvent(pos, 100, 110, acct, cfg, 2000)
	require.InDelta(t, 80.0, rec.PnL, 1e-9)
	require.Equal(t, 1080.0, acct.Balance())
}

// TestEventsLoss reproduces spec §8 scenario E2.
func TestEventsLoss(t *testing.T) {
	acct := account.NewSimple(1000)
	cfg := EventsConfig{InvestmentAmount: 100, PayoutMultiplier: 1.8}

	sig := strategy.Signal{Action: strategy.ActionUp, Symbol: "BTC/USDT", Quantity: 100, Confidence: 1}
	pos, err := OpenEvent(sig, acct, cfg, 1000)
	require.NoError(t, err)

	rec := ResolveEvent(pos, 100, 95, acct, cfg, 2000)
	require.InDelta(t, -100.0, rec.PnL, 1e-9)
	require.Equal(t, 900.0, acct.Balance())
}

func TestEventsTieLosesStake(t *testing.T) {
	acct := account.NewSimple(1000)
	cfg := EventsConfig{InvestmentAmount: 100, PayoutMultiplier: 1.8}

	sig := strategy.Signal{Action: strategy.ActionDown, Symbol: "BTC/USDT", Quantity: 100, Confidence: 1}
	pos, err := OpenEvent(sig, acct, cfg, 1000)
	require.NoError(t, err)

	rec := ResolveEvent(pos, 100, 100, acct, cfg, 2000)
	require.InDelta(t, -100.0, rec.PnL, 1e-9)
}

func TestFuturesTraderOpenAndCloseAll(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := position.NewManager()
	ft := Futures{Positions: mgr, Account: acct, Config: position.Config{
		Leverage: 10, PositionSizePct: 0.1, TakerFee: 0.0004, Slippage: 0.0005, MaintenanceMarginRatio: 0.004,
	}}

	recs, err := ft.Apply(strategy.Signal{Action: strategy.ActionLong, Symbol: "BTC/USDT"}, 100, 1000)
	require.NoError(t, err)
	require.Empty(t, recs)

	recs, err = ft.Apply(strategy.Signal{Action: strategy.ActionClose, Symbol: "BTC/USDT"}, 105, 2000)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestFuturesTraderClosePositionNotFound(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := position.NewManager()
	ft := Futures{Positions: mgr, Account: acct, Config: position.Config{Leverage: 10, PositionSizePct: 0.1}}

	_, err := ft.Apply(strategy.Signal{Action: strategy.ActionCloseShort, Symbol: "BTC/USDT"}, 100, 1000)
	require.ErrorIs(t, err, position.ErrPositionNotFound)
}
