// Package position implements the futures hedge-mode position manager of
// spec §4.I: per-symbol (long, short) slots, margin accounting at open/close,
// mark-to-market, and the strict-priority stop-order sweep (liquidation >
// stop-loss > take-profit > trailing-stop).
//
// Grounded on the teacher's Position/SideBook pair in trader.go (one struct
// per open lot, a per-side book holding at most the teacher's own
// multi-runner lots) generalized from the teacher's spot long-only book to
// exactly two independent slots (LONG, SHORT) per symbol — hedge mode per
// spec §3/§8.3 — and from the teacher's USD-trailing activation formula
// (activationPrice in trader.go) to the mark-price trailing-stop update of
// spec §4.I.
package position

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chidi150c/qengine/internal/account"
	"github.com/chidi150c/qengine/internal/trade"
)

// Side is the position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Errors per spec §7.
var (
	ErrDuplicatePosition = errors.New("duplicate position")
	ErrPositionNotFound  = errors.New("position not found")
)

// StopReason names why check_stop_orders fired, reflected into the trade
// record's close reason (spec §4.I).
type StopReason string

const (
	ReasonLiquidation  StopReason = "liquidation"
	ReasonStopLoss     StopReason = "stop_loss"
	ReasonTakeProfit   StopReason = "take_profit"
	ReasonTrailingStop StopReason = "trailing_stop"
	ReasonSessionEnd   StopReason = "session_end"
	ReasonRiskCritical StopReason = "risk_critical"
	ReasonManualClose  StopReason = "manual_close"
)

// Config holds the per-open/close economics spec §4.I and §6 name.
type Config struct {
	Leverage               float64
	PositionSizePct        float64
	TakerFee               float64
	Slippage               float64
	MaintenanceMarginRatio float64
	// TrailingStopPct is the configured trailing-stop offset (§4.I
	// mark_to_market: "recomputes any trailing-stop price according to its
	// configured offset"). Zero disables trailing-stop tracking.
	TrailingStopPct float64
}

// Position is one open futures position (spec §3).
type Position struct {
	Symbol           string
	Side             Side
	EntryPrice       float64
	Size             float64
	Leverage         float64
	Margin           float64
	EntryTimeMs      int64
	EntryFee         float64
	UnrealizedPnL    float64
	LiquidationPrice float64
	StopLoss         *float64
	TakeProfit       *float64
	TrailingStopPct  float64
	TrailingStop     *float64 // current computed trailing-stop price, nil until activated
	HighestPrice     float64
	LowestPrice      float64
}

// Slot is a symbol's hedge state: at most one LONG and one SHORT outstanding
// (spec §3 "Hedge slot", §8.3).
type Slot struct {
	Long  *Position
	Short *Position
}

// Manager owns one Slot per symbol (spec §4.I).
type Manager struct {
	slots map[string]*Slot
}

// NewManager creates an empty position manager.
func NewManager() *Manager {
	return &Manager{slots: map[string]*Slot{}}
}

func (m *Manager) slotFor(symbol string) *Slot {
	s, ok := m.slots[symbol]
	if !ok {
		s = &Slot{}
		m.slots[symbol] = s
	}
	return s
}

// Get returns the current slot for symbol (may be empty).
func (m *Manager) Get(symbol string) Slot {
	if s, ok := m.slots[symbol]; ok {
		return *s
	}
	return Slot{}
}

// Open creates a new position on the given side per the §4.I contract.
// quantityUSDTNotional, when > 0, overrides cfg-derived sizing: it is
// interpreted as a USDT notional, and margin = quantityUSDTNotional / leverage
// (spec §4.I "or from signal.quantity if specified").
func (m *Manager) Open(symbol string, side Side, price float64, quantityUSDTNotional float64, acct *account.Futures, cfg Config, entryTimeMs int64) (*Position, error) {
	slot := m.slotFor(symbol)
	occupied := (side == SideLong && slot.Long != nil) || (side == SideShort && slot.Short != nil)
	if occupied {
		return nil, fmt.Errorf("position: symbol %s side %s already open: %w", symbol, side, ErrDuplicatePosition)
	}

	leverage := cfg.Leverage
	if leverage < 1 {
		leverage = 1
	}

	var margin float64
	if quantityUSDTNotional > 0 {
		margin = quantityUSDTNotional / leverage
	} else {
		margin = acct.Cash() * cfg.PositionSizePct
	}
	notional := margin * leverage

	var fillPrice float64
	if side == SideLong {
		fillPrice = price * (1 + cfg.Slippage)
	} else {
		fillPrice = price * (1 - cfg.Slippage)
	}
	size := notional / fillPrice
	entryFee := notional * cfg.TakerFee

	var liqPrice float64
	if side == SideLong {
		liqPrice = fillPrice * (1 - (1/leverage) + cfg.MaintenanceMarginRatio)
	} else {
		liqPrice = fillPrice * (1 + (1/leverage) - cfg.MaintenanceMarginRatio)
	}

	acctSide := account.SideLong
	if side == SideShort {
		acctSide = account.SideShort
	}
	if err := acct.LockMargin(margin, acctSide); err != nil {
		return nil, fmt.Errorf("position: open %s %s: %w", symbol, side, err)
	}
	acct.ApplyFee(entryFee)

	pos := &Position{
		Symbol:           symbol,
		Side:             side,
		EntryPrice:       fillPrice,
		Size:             size,
		Leverage:         leverage,
		Margin:           margin,
		EntryTimeMs:      entryTimeMs,
		EntryFee:         entryFee,
		LiquidationPrice: liqPrice,
		TrailingStopPct:  cfg.TrailingStopPct,
		HighestPrice:     fillPrice,
		LowestPrice:      fillPrice,
	}
	if side == SideLong {
		slot.Long = pos
	} else {
		slot.Short = pos
	}
	return pos, nil
}

// Close realizes PnL, releases margin, and returns the resulting trade
// record (spec §4.I close contract).
func (m *Manager) Close(symbol string, side Side, price float64, acct *account.Futures, cfg Config, reason StopReason, exitTimeMs int64) (trade.Record, error) {
	slot := m.slotFor(symbol)
	var pos *Position
	switch side {
	case SideLong:
		pos = slot.Long
	case SideShort:
		pos = slot.Short
	}
	if pos == nil {
		return trade.Record{}, fmt.Errorf("position: close %s %s: %w", symbol, side, ErrPositionNotFound)
	}

	var fillPrice float64
	if side == SideLong {
		fillPrice = price * (1 - cfg.Slippage)
	} else {
		fillPrice = price * (1 + cfg.Slippage)
	}

	var realized float64
	if side == SideLong {
		realized = (fillPrice - pos.EntryPrice) * pos.Size
	} else {
		realized = (pos.EntryPrice - fillPrice) * pos.Size
	}
	exitFee := fillPrice * pos.Size * cfg.TakerFee

	acctSide := account.SideLong
	if side == SideShort {
		acctSide = account.SideShort
	}
	if err := acct.ReleaseMargin(pos.Margin, acctSide); err != nil {
		return trade.Record{}, fmt.Errorf("position: close %s %s: %w", symbol, side, err)
	}
	acct.ApplyPnL(realized - exitFee)

	pnl := realized - exitFee - pos.EntryFee
	rec := trade.Record{
		TradeID:     uuid.New().String(),
		Symbol:      symbol,
		Action:      string(side),
		EntryTimeMs: pos.EntryTimeMs,
		EntryPrice:  pos.EntryPrice,
		ExitTimeMs:  exitTimeMs,
		ExitPrice:   fillPrice,
		Quantity:    pos.Size,
		PnL:         pnl,
		PnLPct:      pnl / pos.Margin,
		Fees:        pos.EntryFee + exitFee,
	}

	switch side {
	case SideLong:
		slot.Long = nil
	case SideShort:
		slot.Short = nil
	}
	_ = reason // reason is surfaced by the caller (engine) on the emitted event, not stored on the record
	return rec, nil
}

// MarkToMarket updates unrealized PnL, the running high/low, and the
// trailing-stop price for one position (spec §4.I).
func (m *Manager) MarkToMarket(pos *Position, markPrice float64) {
	if pos == nil {
		return
	}
	if pos.Side == SideLong {
		pos.UnrealizedPnL = (markPrice - pos.EntryPrice) * pos.Size
	} else {
		pos.UnrealizedPnL = (pos.EntryPrice - markPrice) * pos.Size
	}
	if markPrice > pos.HighestPrice {
		pos.HighestPrice = markPrice
	}
	if markPrice < pos.LowestPrice {
		pos.LowestPrice = markPrice
	}
	if pos.TrailingStopPct <= 0 {
		return
	}
	var ts float64
	if pos.Side == SideLong {
		ts = pos.HighestPrice * (1 - pos.TrailingStopPct)
	} else {
		ts = pos.LowestPrice * (1 + pos.TrailingStopPct)
	}
	pos.TrailingStop = &ts
}

// StopCheck is the outcome of CheckStopOrders.
type StopCheck struct {
	Triggered bool
	Reason    StopReason
}

// CheckStopOrders fires at most one action per call, in strict priority
// order: liquidation, stop-loss, take-profit, trailing-stop (spec §4.I).
func CheckStopOrders(pos *Position, markPrice float64) StopCheck {
	if pos == nil {
		return StopCheck{}
	}
	isLong := pos.Side == SideLong

	if (isLong && markPrice <= pos.LiquidationPrice) || (!isLong && markPrice >= pos.LiquidationPrice) {
		return StopCheck{Triggered: true, Reason: ReasonLiquidation}
	}
	if pos.StopLoss != nil {
		sl := *pos.StopLoss
		if (isLong && markPrice <= sl) || (!isLong && markPrice >= sl) {
			return StopCheck{Triggered: true, Reason: ReasonStopLoss}
		}
	}
	if pos.TakeProfit != nil {
		tp := *pos.TakeProfit
		if (isLong && markPrice >= tp) || (!isLong && markPrice <= tp) {
			return StopCheck{Triggered: true, Reason: ReasonTakeProfit}
		}
	}
	if pos.TrailingStop != nil {
		ts := *pos.TrailingStop
		if (isLong && markPrice <= ts) || (!isLong && markPrice >= ts) {
			return StopCheck{Triggered: true, Reason: ReasonTrailingStop}
		}
	}
	return StopCheck{}
}

// CloseAll flushes both slots of symbol at price, in LONG-then-SHORT order
// (spec §4.I close_all / §4.J CLOSE_ALL ordering). Missing slots are
// skipped, not errors.
func (m *Manager) CloseAll(symbol string, price float64, acct *account.Futures, cfg Config, reason StopReason, timeMs int64) ([]trade.Record, error) {
	slot := m.slotFor(symbol)
	var out []trade.Record
	if slot.Long != nil {
		rec, err := m.Close(symbol, SideLong, price, acct, cfg, reason, timeMs)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	if slot.Short != nil {
		rec, err := m.Close(symbol, SideShort, price, acct, cfg, reason, timeMs)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// AllSymbols returns every symbol with a tracked (possibly empty) slot, for
// iteration by the engine's mark-to-market / stop-sweep / session-end passes.
func (m *Manager) AllSymbols() []string {
	out := make([]string, 0, len(m.slots))
	for s := range m.slots {
		out = append(out, s)
	}
	return out
}
