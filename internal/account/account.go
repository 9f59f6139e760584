// Package account implements the simulated accounts of spec §4.H: a simple
// cash-only account for event contracts, and a futures account with
// per-direction locked margin and the invariants of spec §3.
//
// Grounded on the teacher's EquityUSD/SetEquityUSD pattern in trader.go
// (a mutex-guarded float balance with setter helpers) generalized from one
// cash number to the cash+long-margin+short-margin triple spec §3 requires
// for hedge mode, and on broker_paper.go's PaperBroker balance bookkeeping.
package account

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientFunds is returned by LockMargin when amount > cash (§4.H, §7).
var ErrInsufficientFunds = errors.New("insufficient funds")

// Side identifies which margin bucket an operation targets.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// TradeResult is the minimal shape SimpleAccount.ApplyTradeResult consumes
// (spec §4.H). BalanceAfter is stamped by ApplyTradeResult.
type TradeResult struct {
	PnL          float64
	BalanceAfter float64
}

// Simple is the cash-only account used by event-contract traders (§3, §4.H).
type Simple struct {
	mu   sync.Mutex
	Cash float64
}

// NewSimple creates a simple account seeded with the given starting cash.
func NewSimple(initialCash float64) *Simple {
	return &Simple{Cash: initialCash}
}

// ApplyTradeResult sets cash += tr.PnL and stamps tr.BalanceAfter (§4.H).
func (a *Simple) ApplyTradeResult(tr *TradeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Cash += tr.PnL
	tr.BalanceAfter = a.Cash
}

// Balance returns the current cash balance.
func (a *Simple) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Cash
}

// Futures is the hedge-mode margin account of spec §3/§4.H. Its three fields
// must always satisfy cash >= 0, longMarginLocked >= 0, shortMarginLocked >= 0,
// and walletBalance == cash + longMarginLocked + shortMarginLocked
// (testable property §8.2).
type Futures struct {
	mu               sync.Mutex
	cash             float64
	longMarginLocked float64
	shortMarginLocked float64
}

// NewFutures creates a futures account seeded with the given starting cash.
func NewFutures(initialCash float64) *Futures {
	return &Futures{cash: initialCash}
}

// Cash returns the unlocked cash balance.
func (a *Futures) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// MarginLocked returns the total margin locked across both directions.
func (a *Futures) MarginLocked() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.longMarginLocked + a.shortMarginLocked
}

// LongMarginLocked returns the margin locked for LONG positions.
func (a *Futures) LongMarginLocked() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.longMarginLocked
}

// ShortMarginLocked returns the margin locked for SHORT positions.
func (a *Futures) ShortMarginLocked() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shortMarginLocked
}

// WalletBalance returns cash + longMarginLocked + shortMarginLocked (§3 invariant b).
func (a *Futures) WalletBalance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash + a.longMarginLocked + a.shortMarginLocked
}

// LockMargin moves amount from cash into the side's locked bucket. Fails
// with ErrInsufficientFunds when amount > cash (§4.H, §7).
func (a *Futures) LockMargin(amount float64, side Side) error {
	if amount < 0 {
		return fmt.Errorf("account: cannot lock negative margin %.8f", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > a.cash {
		return fmt.Errorf("account: lock %.8f exceeds cash %.8f: %w", amount, a.cash, ErrInsufficientFunds)
	}
	a.cash -= amount
	switch side {
	case SideLong:
		a.longMarginLocked += amount
	case SideShort:
		a.shortMarginLocked += amount
	default:
		a.cash += amount // undo before reporting the error
		return fmt.Errorf("account: unknown side %q", side)
	}
	return nil
}

// ReleaseMargin moves amount back from the side's locked bucket into cash.
func (a *Futures) ReleaseMargin(amount float64, side Side) error {
	if amount < 0 {
		return fmt.Errorf("account: cannot release negative margin %.8f", amount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch side {
	case SideLong:
		if amount > a.longMarginLocked+1e-9 {
			return fmt.Errorf("account: release %.8f exceeds locked long margin %.8f", amount, a.longMarginLocked)
		}
		a.longMarginLocked -= amount
	case SideShort:
		if amount > a.shortMarginLocked+1e-9 {
			return fmt.Errorf("account: release %.8f exceeds locked short margin %.8f", amount, a.shortMarginLocked)
		}
		a.shortMarginLocked -= amount
	default:
		return fmt.Errorf("account: unknown side %q", side)
	}
	if a.longMarginLocked < 0 {
		a.longMarginLocked = 0
	}
	if a.shortMarginLocked < 0 {
		a.shortMarginLocked = 0
	}
	a.cash += amount
	return nil
}

// ApplyFee debits fee directly from cash (entry/exit fees are paid from free
// cash, not from locked margin, per spec §4.I open/close contracts).
func (a *Futures) ApplyFee(fee float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash -= fee
}

// ApplyPnL credits realized PnL (net of exit fee, per the close contract's
// `account.apply_pnl(realized_pnl - exit_fee)` call) to cash.
func (a *Futures) ApplyPnL(pnl float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash += pnl
}
