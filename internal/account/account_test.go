package account

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleApplyTradeResultStampsBalance(t *testing.T) {
	a := NewSimple(1000)
	tr := &TradeResult{PnL: -100}
	a.ApplyTradeResult(tr)
	require.Equal(t, 900.0, a.Balance())
	require.Equal(t, 900.0, tr.BalanceAfter)
}

func TestFuturesLockMarginInsufficientFunds(t *testing.T) {
	a := NewFutures(1000)
	err := a.LockMargin(1500, SideLong)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestFuturesWalletBalanceInvariant(t *testing.T) {
	a := NewFutures(10000)
	require.NoError(t, a.LockMargin(1000, SideLong))
	require.NoError(t, a.LockMargin(500, SideShort))
	require.Equal(t, 10000.0, a.WalletBalance())
	require.GreaterOrEqual(t, a.Cash(), 0.0)
	require.GreaterOrEqual(t, a.LongMarginLocked(), 0.0)
	require.GreaterOrEqual(t, a.ShortMarginLocked(), 0.0)

	a.ApplyFee(4.0)
	require.Equal(t, 9996.0, a.WalletBalance())

	require.NoError(t, a.ReleaseMargin(1000, SideLong))
	a.ApplyPnL(50)
	require.Equal(t, 10046.0, a.WalletBalance())
}

func TestFuturesReleaseMarginRejectsOverRelease(t *testing.T) {
	a := NewFutures(1000)
	require.NoError(t, a.LockMargin(200, SideLong))
	err := a.ReleaseMargin(300, SideLong)
	require.Error(t, err)
}
