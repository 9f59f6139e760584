package position

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/qengine/internal/account"
)

func baseCfg() Config {
	return Config{
		Leverage:               10,
		PositionSizePct:        0.1,
		TakerFee:                0.0004,
		Slippage:                0.0005,
		MaintenanceMarginRatio:  0.004,
	}
}

// TestFuturesLongCloseInProfit reproduces spec §8 scenario F1.
func TestFuturesLongCloseInProfit(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := NewManager()
	cfg := baseCfg()

	pos, err := mgr.Open("BTC/USDT", SideLong, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)
	require.InDelta(t, 1000.0, pos.Margin, 1e-6)
	require.InDelta(t, 100.05, pos.EntryPrice, 1e-6)
	require.InDelta(t, 99.95, pos.Size, 0.01)
	require.InDelta(t, 4.0, pos.EntryFee, 1e-6)

	rec, err := mgr.Close("BTC/USDT", SideLong, 110, acct, cfg, ReasonManualClose, 2000)
	require.NoError(t, err)
	require.InDelta(t, 109.945, rec.ExitPrice, 1e-6)
	require.InDelta(t, 980.58, rec.PnL, 1.0)
	require.InDelta(t, 10980.58, acct.WalletBalance(), 1.0)
}

// TestLiquidationBeatsStopLoss reproduces spec §8 scenario F2: liquidation
// fires ahead of a further-away stop-loss even though both would trigger.
func TestLiquidationBeatsStopLoss(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := NewManager()
	cfg := baseCfg()

	pos, err := mgr.Open("BTC/USDT", SideLong, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)
	require.InDelta(t, 90.4, pos.LiquidationPrice, 0.5)

	sl := 95.0
	pos.StopLoss = &sl

	mgr.MarkToMarket(pos, 90.0)
	check := CheckStopOrders(pos, 90.0)
	require.True(t, check.Triggered)
	require.Equal(t, ReasonLiquidation, check.Reason)
}

func TestHedgeSlotRejectsDuplicateSameSide(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := NewManager()
	cfg := baseCfg()

	_, err := mgr.Open("BTC/USDT", SideLong, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)
	_, err = mgr.Open("BTC/USDT", SideLong, 101, 0, acct, cfg, 1100)
	require.ErrorIs(t, err, ErrDuplicatePosition)
}

func TestHedgeSlotAllowsOppositeSidesSimultaneously(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := NewManager()
	cfg := baseCfg()

	_, err := mgr.Open("BTC/USDT", SideLong, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)
	_, err = mgr.Open("BTC/USDT", SideShort, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)

	slot := mgr.Get("BTC/USDT")
	require.NotNil(t, slot.Long)
	require.NotNil(t, slot.Short)
}

func TestCloseAllOrdersLongThenShort(t *testing.T) {
	acct := account.NewFutures(10000)
	mgr := NewManager()
	cfg := baseCfg()

	_, err := mgr.Open("BTC/USDT", SideLong, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)
	_, err = mgr.Open("BTC/USDT", SideShort, 100, 0, acct, cfg, 1000)
	require.NoError(t, err)

	recs, err := mgr.CloseAll("BTC/USDT", 100, acct, cfg, ReasonSessionEnd, 2000)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "LONG", recs[0].Action)
	require.Equal(t, "SHORT", recs[1].Action)

	slot := mgr.Get("BTC/USDT")
	require.Nil(t, slot.Long)
	require.Nil(t, slot.Short)
}
