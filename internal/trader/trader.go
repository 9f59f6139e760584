// Package trader implements spec §4.J: map a resolved signal + reference
// price to concrete account and position mutations. Two variants — the
// fixed-stake events trader and the hedge-mode futures trader.
//
// Grounded on the teacher's step()/closeLot() flow in step.go and trader.go:
// a single function that parses a signal's side, looks up (or opens) a lot,
// and either places an entry or runs the teacher's exit-classification path
// (closeLot's rawPL/entryFee/exitFee bookkeeping, generalized here into
// position.Manager.Close).
package trader

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chidi150c/qengine/internal/account"
	"github.com/chidi150c/qengine/internal/position"
	"github.com/chidi150c/qengine/internal/strategy"
	"github.com/chidi150c/qengine/internal/trade"
)

// ErrInvalidSignal is returned when a signal's action cannot be parsed into
// a known trade intent (spec §7).
var ErrInvalidSignal = errors.New("invalid signal")

// --- Events trader (spec §4.J "Events trader") ---

// EventsConfig tunes the fixed-stake events trader.
type EventsConfig struct {
	InvestmentAmount  float64
	PayoutMultiplier  float64 // >=1: stake returned * multiplier; 0<m<1: stake + stake*m
}

// OpenEventPosition is the minimal state carried between a bar's open (when
// the stake is debited) and its close (when the bar resolves). Spec §4.J:
// "resolution occurs when the current bar closes" — so unlike futures
// positions this is not multi-bar; the engine opens and resolves it within
// the same tick using the bar's own open/close.
type OpenEventPosition struct {
	Symbol   string
	Up       bool // true for UP/LONG/BUY, false for DOWN/SHORT/SELL
	Stake    float64
	OpenTime int64
}

// canonicalEventDirection maps LONG/SHORT/BUY/SELL to the canonical UP/DOWN at the
// trader boundary only (spec §4.J, §3).
func canonicalEventDirection(a strategy.Action) (up bool, ok bool) {
	switch a {
	case strategy.ActionUp, strategy.ActionLong, strategy.ActionBuy:
		return true, true
	case strategy.ActionDown, strategy.ActionShort, strategy.ActionSell:
		return false, true
	default:
		return false, false
	}
}

// OpenEvent debits the stake from acct and returns the pending position
// (spec §4.J: "at open, stake ... is debited and the open price captured").
func OpenEvent(sig strategy.Signal, acct *account.Simple, cfg EventsConfig, currentTimeMs int64) (OpenEventPosition, error) {
	up, ok := canonicalEventDirection(sig.Action)
	if !ok {
		return OpenEventPosition{}, fmt.Errorf("trader: event signal action %q: %w", sig.Action, ErrInvalidSignal)
	}
	stake := sig.Quantity
	if stake <= 0 {
		stake = cfg.InvestmentAmount
	}
	acct.ApplyTradeResult(&account.TradeResult{PnL: -stake})
	return OpenEventPosition{Symbol: sig.Symbol, Up: up, Stake: stake, OpenTime: currentTimeMs}, nil
}

// ResolveEvent settles an open event position against the bar's open/close
// (spec §4.J). Ties (close == open) lose the stake.
func ResolveEvent(pos OpenEventPosition, barOpen, barClose float64, acct *account.Simple, cfg EventsConfig, exitTimeMs int64) trade.Record {
	var won bool
	if barClose > barOpen {
		won = pos.Up
	} else if barClose < barOpen {
		won = !pos.Up
	} else {
		won = false // tie: issuer keeps the spread
	}

	var payout float64
	if won {
		m := cfg.PayoutMultiplier
		if m >= 1 {
			payout = pos.Stake * m
		} else {
			payout = pos.Stake + pos.Stake*m
		}
	}
	acct.ApplyTradeResult(&account.TradeResult{PnL: payout})

	pnl := payout - pos.Stake
	action := "DOWN"
	if pos.Up {
		action = "UP"
	}
	return trade.Record{
		TradeID:     uuid.New().String(),
		Symbol:      pos.Symbol,
		Action:      action,
		EntryTimeMs: pos.OpenTime,
		EntryPrice:  barOpen,
		ExitTimeMs:  exitTimeMs,
		ExitPrice:   barClose,
		Quantity:    pos.Stake,
		PnL:         pnl,
		PnLPct:      pnl / pos.Stake,
	}
}

// --- Futures trader (spec §4.J "Futures trader") ---

// Intent is the parsed shape of a futures signal's action (spec §4.J table).
type Intent string

const (
	IntentOpen     Intent = "OPEN"
	IntentClose    Intent = "CLOSE"
	IntentCloseAll Intent = "CLOSE_ALL"
	IntentHold     Intent = "HOLD"
)

// ParseFuturesAction maps a Signal.Action into (intent, side) per spec §4.J.
func ParseFuturesAction(a strategy.Action) (Intent, position.Side, error) {
	switch a {
	case strategy.ActionLong:
		return IntentOpen, position.SideLong, nil
	case strategy.ActionShort:
		return IntentOpen, position.SideShort, nil
	case strategy.ActionCloseLong:
		return IntentClose, position.SideLong, nil
	case strategy.ActionCloseShort:
		return IntentClose, position.SideShort, nil
	case strategy.ActionClose:
		return IntentCloseAll, "", nil
	case strategy.ActionHold:
		return IntentHold, "", nil
	default:
		return "", "", fmt.Errorf("trader: futures signal action %q: %w", a, ErrInvalidSignal)
	}
}

// Futures drives the position manager per a resolved signal (spec §4.J).
type Futures struct {
	Positions *position.Manager
	Account   *account.Futures
	Config    position.Config
}

// Apply executes sig against the current slot state, returning any trade
// records produced (CLOSE_ALL may produce up to two).
func (f *Futures) Apply(sig strategy.Signal, price float64, currentTimeMs int64) ([]trade.Record, error) {
	intent, side, err := ParseFuturesAction(sig.Action)
	if err != nil {
		return nil, err
	}

	// signal.quantity, when set, is interpreted as USDT notional (spec §4.I);
	// the reference price used for fills is `price`, passed by the engine.
	quantityNotional := sig.Quantity

	switch intent {
	case IntentOpen:
		_, err := f.Positions.Open(sig.Symbol, side, price, quantityNotional, f.Account, f.Config, currentTimeMs)
		if err != nil {
			return nil, fmt.Errorf("trader: futures open %s %s: %w", sig.Symbol, side, err)
		}
		return nil, nil
	case IntentClose:
		rec, err := f.Positions.Close(sig.Symbol, side, price, f.Account, f.Config, position.ReasonManualClose, currentTimeMs)
		if err != nil {
			return nil, fmt.Errorf("trader: futures close %s %s: %w", sig.Symbol, side, err)
		}
		return []trade.Record{rec}, nil
	case IntentCloseAll:
		// LONG then SHORT (spec §4.J, §4.I close_all ordering).
		recs, err := f.Positions.CloseAll(sig.Symbol, price, f.Account, f.Config, position.ReasonManualClose, currentTimeMs)
		if err != nil {
			return recs, fmt.Errorf("trader: futures close_all %s: %w", sig.Symbol, err)
		}
		return recs, nil
	case IntentHold:
		return nil, nil
	default:
		return nil, fmt.Errorf("trader: unknown intent %q", intent)
	}
}
