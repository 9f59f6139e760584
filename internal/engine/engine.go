// Package engine implements the execution engine of spec §4.L: it
// orchestrates the streaming bar loader, the indicator precompute stage, the
// strategy contract, the signal resolver, the traders, the accounts, the
// position manager, and the risk controller, one tick at a time, and emits a
// strictly ordered event stream.
//
// Grounded on the teacher's step() tick loop (step.go): mark-to-market style
// price refresh, an exit-check pass, a single synchronous strategy
// evaluation, then order placement — generalized from the teacher's
// spot-only single-decision-per-tick loop to the two-instrument-family,
// resolver-mediated pipeline spec §4.L names. The channel-plus-goroutine
// event stream follows the teacher's own pendingBuyCh/pendingSellCh
// asynchronous-result pattern in trader.go/step.go.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chidi150c/qengine/internal/account"
	"github.com/chidi150c/qengine/internal/bar"
	"github.com/chidi150c/qengine/internal/indicator"
	"github.com/chidi150c/qengine/internal/marketdata"
	"github.com/chidi150c/qengine/internal/position"
	"github.com/chidi150c/qengine/internal/report"
	"github.com/chidi150c/qengine/internal/risk"
	"github.com/chidi150c/qengine/internal/signalresolver"
	"github.com/chidi150c/qengine/internal/strategy"
	"github.com/chidi150c/qengine/internal/trade"
	"github.com/chidi150c/qengine/internal/trader"
)

// Family selects the instrument family the engine drives (spec §1).
type Family string

const (
	FamilyEvents  Family = "events"
	FamilyFutures Family = "futures"
)

// EventType enumerates the output event stream's event kinds (spec §6).
type EventType string

const (
	EventTick     EventType = "tick"
	EventTrade    EventType = "trade"
	EventWarning  EventType = "warning"
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry of the output event stream (spec §6): event_type, a
// free-form data map, and the logical (bar) timestamp — never wall clock.
type Event struct {
	Type        EventType
	Data        map[string]any
	TimestampMs int64
}

// Pacer implements the replay-only speed control of spec §5: batches tick
// emissions according to the configured speed factor. Paper and live runs
// are given speed 0 by cmd/qengine, so they emit every tick (no batching);
// only replay batches.
type Pacer struct {
	Speed     int // s in [0, 999]; 0 means "no throttling, emit every tick"
	Express   bool
	tickCount int
	bundled   int
}

// NewPacer builds a pacer for the given speed factor (spec §5).
func NewPacer(speed int, express bool) *Pacer {
	return &Pacer{Speed: speed, Express: express}
}

// everyN returns the tick-batching cadence for the configured speed (§5).
func (p *Pacer) everyN() int {
	switch {
	case p.Express:
		return 200
	case p.Speed < 10:
		return 1
	case p.Speed < 50:
		return 5
	case p.Speed < 100:
		return 10
	default:
		return 20
	}
}

// ShouldEmit reports whether this tick should flush a batched tick event.
// Batching changes only emission cadence, never the logical sequence (§5).
func (p *Pacer) ShouldEmit() bool {
	p.tickCount++
	p.bundled++
	n := p.everyN()
	if p.bundled >= n {
		p.bundled = 0
		return true
	}
	return false
}

// Sleep cooperatively throttles replay speed when configured (§5
// "optional cooperative sleeps used to throttle replay speed").
func (p *Pacer) Sleep(ctx context.Context, perTick time.Duration) error {
	if perTick <= 0 {
		return nil
	}
	t := time.NewTimer(perTick)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config bundles the per-run tunables the engine needs from spec §6's
// trading/engine/risk sections.
type Config struct {
	Symbol           string
	Interval         bar.Interval
	Family           Family
	InitialCapital   float64
	Position         position.Config // futures sizing/fee/slippage economics
	EventsTrading    trader.EventsConfig
	Resolver         signalresolver.Config
	Risk             risk.Config
	Speed            int  // replay speed factor, §5
	Express          bool // express mode, §5
	SleepPerTick     time.Duration
}

// Engine drives one strategy over one symbol through one instrument family
// (spec §4.L).
type Engine struct {
	cfg        Config
	strategy   strategy.Strategy
	loader     *marketdata.Loader
	indicators *indicator.Set
	log        *slog.Logger

	simpleAcct  *account.Simple
	futAcct     *account.Futures
	positions   *position.Manager
	riskState   *risk.State
	pacer       *Pacer

	stopTrading bool // set once risk STOP_TRADING fires; closes still allowed
	trades      []trade.Record
	equity      []report.EquityPoint
}

// New builds an engine for one run. strategy and loader must already be
// constructed (loader over the warm-up-extended range per §4.L.1).
func New(cfg Config, strat strategy.Strategy, loader *marketdata.Loader, indicators *indicator.Set, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:        cfg,
		strategy:   strat,
		loader:     loader,
		indicators: indicators,
		log:        log,
		riskState:  risk.NewState(cfg.InitialCapital),
		pacer:      NewPacer(cfg.Speed, cfg.Express),
	}
	if cfg.Family == FamilyFutures {
		e.futAcct = account.NewFutures(cfg.InitialCapital)
		e.positions = position.NewManager()
	} else {
		e.simpleAcct = account.NewSimple(cfg.InitialCapital)
	}
	return e
}

// Run drives the engine to completion, streaming events on the returned
// channel (closed when the run terminates). Call Report() after the channel
// closes to retrieve the final aggregated report (spec §4.L.3, §4.M).
func (e *Engine) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		e.run(ctx, out)
	}()
	return out
}

func (e *Engine) emit(out chan<- Event, evt Event) {
	out <- evt
}

func (e *Engine) equityNow() float64 {
	if e.cfg.Family == FamilyFutures {
		unrealized := 0.0
		for _, sym := range e.positions.AllSymbols() {
			slot := e.positions.Get(sym)
			if slot.Long != nil {
				unrealized += slot.Long.UnrealizedPnL
			}
			if slot.Short != nil {
				unrealized += slot.Short.UnrealizedPnL
			}
		}
		return e.futAcct.WalletBalance() + unrealized
	}
	return e.simpleAcct.Balance()
}

// dailyPnL sums the realized PnL of trades that closed on the given UTC
// date (spec §4.K: "daily_pnl is recomputed from trade_history filtered to
// the UTC date of the current tick").
func (e *Engine) dailyPnL(date string) float64 {
	sum := 0.0
	for _, t := range e.trades {
		if !t.Closed() {
			continue
		}
		if time.UnixMilli(t.ExitTimeMs).UTC().Format("2006-01-02") == date {
			sum += t.PnL
		}
	}
	return sum
}

func (e *Engine) positionRatio() float64 {
	if e.cfg.Family != FamilyFutures {
		return 0
	}
	wallet := e.futAcct.WalletBalance()
	if wallet <= 0 {
		return 0
	}
	return e.futAcct.MarginLocked() / wallet
}

func (e *Engine) recordEquity(timestampMs int64) report.EquityPoint {
	eq := e.equityNow()
	peak := e.riskState.PeakEquity
	if eq > peak {
		peak = eq
	}
	dd := peak - eq
	ddPct := 0.0
	if peak > 0 {
		ddPct = dd / peak
	}
	p := report.EquityPoint{TimestampMs: timestampMs, Equity: eq, Drawdown: dd, DrawdownPct: ddPct}
	e.equity = append(e.equity, p)
	return p
}

func (e *Engine) run(ctx context.Context, out chan<- Event) {
	var lastPrice float64
	terminationReason := "session_end"
	var cancelled bool

	warmup := 0
	if dr, ok := e.strategy.(strategy.DataRequirer); ok {
		req := dr.GetDataRequirements(string(e.cfg.Interval))
		warmup = req.WarmupPeriods
	}

	var window strategy.MarketWindow
	tickIdx := 0

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			terminationReason = "cancelled"
			break loop
		default:
		}

		b, ok, err := e.loader.Next(ctx)
		if err != nil {
			e.emit(out, Event{Type: EventError, Data: map[string]any{"error": err.Error()}, TimestampMs: lastBarTime(window)})
			terminationReason = "data_fetch_error"
			break loop
		}
		if !ok {
			break loop
		}
		lastPrice = b.Close
		window = appendBar(window, b)
		tickIdx++

		if tickIdx <= warmup {
			continue // warm-up bars prime indicators/context but never tick the strategy
		}

		var tickEvents []Event

		if e.cfg.Family == FamilyFutures {
			for _, sym := range e.positions.AllSymbols() {
				slot := e.positions.Get(sym)
				if slot.Long != nil {
					e.positions.MarkToMarket(slot.Long, b.Close)
				}
				if slot.Short != nil {
					e.positions.MarkToMarket(slot.Short, b.Close)
				}
			}

			for _, sym := range e.positions.AllSymbols() {
				for _, side := range []position.Side{position.SideLong, position.SideShort} {
					slot := e.positions.Get(sym)
					var pos *position.Position
					if side == position.SideLong {
						pos = slot.Long
					} else {
						pos = slot.Short
					}
					if pos == nil {
						continue
					}
					check := position.CheckStopOrders(pos, b.Close)
					if !check.Triggered {
						continue
					}
					rec, err := e.positions.Close(sym, side, b.Close, e.futAcct, e.cfg.Position, check.Reason, b.OpenTimeMs)
					if err != nil {
						tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"error": err.Error()}, TimestampMs: b.OpenTimeMs})
						continue
					}
					e.trades = append(e.trades, rec)
					tickEvents = append(tickEvents, Event{Type: EventTrade, Data: map[string]any{"trade": rec, "reason": string(check.Reason)}, TimestampMs: b.OpenTimeMs})
				}
			}
		}

		eqPoint := e.recordEquity(b.OpenTimeMs)

		indicators := map[string][]float64{}
		if e.indicators != nil {
			computed, ierr := e.indicators.Compute(indicator.Window{Open: window.Open, High: window.High, Low: window.Low, Close: window.Close, Volume: window.Volume})
			if ierr == nil {
				indicators = computed
			}
		}

		tctx := strategy.Context{
			Symbol:      e.cfg.Symbol,
			Interval:    string(e.cfg.Interval),
			CurrentTime: b.OpenTimeMs,
			MarketData:  window,
			Indicators:  indicators,
			Cash:        e.cashSnapshot(),
			Positions:   e.positionsSnapshot(),
		}

		result, err := e.strategy.Execute(ctx, tctx)
		var signals []strategy.Signal
		if err != nil {
			tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"strategy_error": err.Error()}, TimestampMs: b.OpenTimeMs})
		} else {
			signals = result.Signals
		}

		resolved := signalresolver.Resolve(signals, e.cfg.Resolver)

		for _, sig := range resolved {
			if e.stopTrading && !strategy.IsCloseFamily(sig.Action) {
				tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"discarded_signal": string(sig.Action), "reason": "stop_trading"}, TimestampMs: b.OpenTimeMs})
				continue
			}
			recs, tErr := e.applySignal(sig, b)
			if tErr != nil {
				tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"trade_error": tErr.Error(), "action": string(sig.Action)}, TimestampMs: b.OpenTimeMs})
				continue
			}
			for _, rec := range recs {
				e.trades = append(e.trades, rec)
				tickEvents = append(tickEvents, Event{Type: EventTrade, Data: map[string]any{"trade": rec}, TimestampMs: b.OpenTimeMs})
			}
		}

		e.riskState.Update(b.OpenTimeMs, e.equityNow(), e.dailyPnL)
		riskResult := risk.CheckRisk(e.riskState, e.positionRatio(), e.cfg.Risk)
		switch riskResult.RecommendedAction {
		case risk.ActionForceClose:
			tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"risk_level": riskResult.Level.String(), "rules": ruleNames(riskResult.TriggeredRules)}, TimestampMs: b.OpenTimeMs})
			terminationReason = "risk_critical"
			for _, evt := range tickEvents {
				e.emit(out, evt)
			}
			break loop
		case risk.ActionStopTrading:
			if !e.stopTrading {
				tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"risk_level": riskResult.Level.String(), "rules": ruleNames(riskResult.TriggeredRules)}, TimestampMs: b.OpenTimeMs})
			}
			e.stopTrading = true
		case risk.ActionWarn:
			tickEvents = append(tickEvents, Event{Type: EventWarning, Data: map[string]any{"risk_level": riskResult.Level.String(), "rules": ruleNames(riskResult.TriggeredRules)}, TimestampMs: b.OpenTimeMs})
		}

		for _, evt := range tickEvents {
			e.emit(out, evt)
		}

		if e.pacer.ShouldEmit() {
			e.emit(out, Event{Type: EventTick, Data: map[string]any{"equity": eqPoint.Equity, "drawdown_pct": eqPoint.DrawdownPct}, TimestampMs: b.OpenTimeMs})
		}
		if tickIdx%50 == 0 {
			e.emit(out, Event{Type: EventProgress, Data: map[string]any{"ticks": tickIdx}, TimestampMs: b.OpenTimeMs})
		}

		if sleepErr := e.pacer.Sleep(ctx, e.cfg.SleepPerTick); sleepErr != nil {
			cancelled = true
			terminationReason = "cancelled"
			break loop
		}
	}

	e.terminate(out, lastPrice, terminationReason, cancelled, window)
}

// applySignal dispatches a resolved signal to the appropriate trader
// variant (spec §4.J).
func (e *Engine) applySignal(sig strategy.Signal, b bar.Bar) ([]trade.Record, error) {
	if e.cfg.Family == FamilyFutures {
		ft := trader.Futures{Positions: e.positions, Account: e.futAcct, Config: e.cfg.Position}
		return ft.Apply(sig, b.Close, b.OpenTimeMs)
	}
	pos, err := trader.OpenEvent(sig, e.simpleAcct, e.cfg.EventsTrading, b.OpenTimeMs)
	if err != nil {
		return nil, err
	}
	rec := trader.ResolveEvent(pos, b.Open, b.Close, e.simpleAcct, e.cfg.EventsTrading, b.CloseTimeMs)
	return []trade.Record{rec}, nil
}

func (e *Engine) cashSnapshot() float64 {
	if e.cfg.Family == FamilyFutures {
		return e.futAcct.Cash()
	}
	return e.simpleAcct.Balance()
}

func (e *Engine) positionsSnapshot() map[string]float64 {
	out := map[string]float64{}
	if e.cfg.Family != FamilyFutures {
		return out
	}
	for _, sym := range e.positions.AllSymbols() {
		slot := e.positions.Get(sym)
		net := 0.0
		if slot.Long != nil {
			net += slot.Long.Size
		}
		if slot.Short != nil {
			net -= slot.Short.Size
		}
		out[sym] = net
	}
	return out
}

// terminate flushes open positions at the last observed price, records the
// final equity point, and emits `complete` (spec §4.L.3).
func (e *Engine) terminate(out chan<- Event, lastPrice float64, reason string, cancelled bool, window strategy.MarketWindow) {
	lastTs := lastBarTime(window)
	if e.cfg.Family == FamilyFutures && lastPrice > 0 {
		stopReason := position.ReasonSessionEnd
		if reason == "risk_critical" {
			stopReason = position.ReasonRiskCritical
		}
		for _, sym := range e.positions.AllSymbols() {
			recs, err := e.positions.CloseAll(sym, lastPrice, e.futAcct, e.cfg.Position, stopReason, lastTs)
			if err != nil {
				e.emit(out, Event{Type: EventWarning, Data: map[string]any{"error": err.Error()}, TimestampMs: lastTs})
				continue
			}
			for _, rec := range recs {
				e.trades = append(e.trades, rec)
				e.emit(out, Event{Type: EventTrade, Data: map[string]any{"trade": rec, "reason": string(stopReason)}, TimestampMs: lastTs})
			}
		}
	}
	e.recordEquity(lastTs)

	e.emit(out, Event{
		Type: EventComplete,
		Data: map[string]any{
			"reason":    reason,
			"cancelled": cancelled,
			"trades":    len(e.trades),
		},
		TimestampMs: lastTs,
	})
}

// Report builds the final report over the run's trade records and equity
// curve (spec §4.M). Call after the Run channel has been drained and closed.
func (e *Engine) Report(cfg report.Config) report.Report {
	final := e.cfg.InitialCapital
	if len(e.equity) > 0 {
		final = e.equity[len(e.equity)-1].Equity
	}
	return report.Build(e.cfg.InitialCapital, final, e.trades, e.equity, cfg)
}

// Trades returns the run's trade records in close-time order (spec §5
// ordering guarantee).
func (e *Engine) Trades() []trade.Record { return e.trades }

// Equity returns the run's equity series in tick order (spec §5).
func (e *Engine) Equity() []report.EquityPoint { return e.equity }

func appendBar(w strategy.MarketWindow, b bar.Bar) strategy.MarketWindow {
	w.Open = append(w.Open, b.Open)
	w.High = append(w.High, b.High)
	w.Low = append(w.Low, b.Low)
	w.Close = append(w.Close, b.Close)
	w.Volume = append(w.Volume, b.Volume)
	w.TimestampsMs = append(w.TimestampsMs, b.OpenTimeMs)
	return w
}

func lastBarTime(w strategy.MarketWindow) int64 {
	if len(w.TimestampsMs) == 0 {
		return 0
	}
	return w.TimestampsMs[len(w.TimestampsMs)-1]
}

func ruleNames(rules []risk.TriggeredRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = fmt.Sprintf("%s=%.2f", r.Name, r.Value)
	}
	return out
}
