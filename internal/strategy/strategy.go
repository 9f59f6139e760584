// Package strategy defines the strategy contract of spec §4.F: user-defined
// execute(context) → result plus optional data-requirement declaration, and
// the composite strategy secondary variant.
//
// The Context/Signal shape is grounded on the teacher's strategy.go (its
// Candle/Decision/Signal types), generalized from the teacher's hardcoded
// Buy/Sell/Flat enum to the full action vocabulary spec §3 names (BUY, SELL,
// HOLD, LONG, SHORT, CLOSE_LONG, CLOSE_SHORT, CLOSE, UP, DOWN) and from a
// single always-on strategy to a pluggable interface for named, versioned
// strategies.
package strategy

import (
	"context"
	"fmt"
	"sort"
)

// Action is a signal's intent, per spec §3.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionHold       Action = "HOLD"
	ActionLong       Action = "LONG"
	ActionShort      Action = "SHORT"
	ActionCloseLong  Action = "CLOSE_LONG"
	ActionCloseShort Action = "CLOSE_SHORT"
	ActionClose      Action = "CLOSE"
	ActionUp         Action = "UP"
	ActionDown       Action = "DOWN"
)

// priority implements §4.G's priority table, used by the signal resolver
// package but defined here alongside Action since it is a property of the
// action vocabulary itself.
var priority = map[Action]int{
	ActionClose:      100,
	ActionCloseLong:  90,
	ActionCloseShort: 90,
	ActionLong:       50,
	ActionShort:      50,
	ActionBuy:        50,
	ActionSell:       50,
	ActionUp:         50,
	ActionDown:       50,
	ActionHold:       0,
}

// Priority returns the action's stable-ordering priority (§4.G).
func Priority(a Action) int { return priority[a] }

// IsCloseFamily reports whether a is one of the close-family actions (§4.G
// step 2: "extract all close-family signals first").
func IsCloseFamily(a Action) bool {
	return a == ActionClose || a == ActionCloseLong || a == ActionCloseShort
}

// Signal is the strategy's output per spec §3.
type Signal struct {
	Action     Action
	Symbol     string
	Quantity   float64
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
	Confidence float64
	Reason     string
}

// MarketWindow holds the visible OHLCV arrays for the tick's window, keyed
// by the field name spec §3 lists (open/high/low/close/volume/timestamps).
type MarketWindow struct {
	Open, High, Low, Close, Volume []float64
	TimestampsMs                   []int64
}

// Context is the immutable per-tick input a strategy receives (spec §3).
type Context struct {
	Symbol      string
	Interval    string
	CurrentTime int64 // epoch ms of the current bar's open_time
	MarketData  MarketWindow
	Indicators  map[string][]float64
	Cash        float64
	// Positions is the net-visible size per symbol: positive = net long,
	// negative = net short (hedge mode exposes both legs via the position
	// manager separately, not through this map).
	Positions map[string]float64
	Metadata  map[string]any // composite-strategy scratch space (sequential mode)
}

// Result is what Strategy.Execute returns: zero or more signals for the tick.
type Result struct {
	Signals []Signal
}

// DataRequirements lets a strategy declare the warm-up window the engine
// must provide before ticking it live (spec §4.F).
type DataRequirements struct {
	MinBars              int
	WarmupPeriods        int
	PreferClosedBar       bool
	ExtraSeconds          int
	MaxTimeframeRequired string
}

// Strategy is the contract every trading strategy implements.
type Strategy interface {
	Name() string
	Version() string
	Tags() []string
	Execute(ctx context.Context, tc Context) (Result, error)
}

// DataRequirer is an optional interface a Strategy may additionally
// implement to declare its warm-up needs (spec §4.F).
type DataRequirer interface {
	GetDataRequirements(interval string) DataRequirements
}

// ExecutionMode selects how a composite strategy runs its sub-strategies.
type ExecutionMode string

const (
	ModeParallel   ExecutionMode = "parallel"
	ModeSequential ExecutionMode = "sequential"
)

// AggregationMode selects how a composite strategy collapses sub-results.
type AggregationMode string

const (
	AggregateVote     AggregationMode = "vote"
	AggregateFirst    AggregationMode = "first"
	AggregateWeighted AggregationMode = "weighted"
)

// Composite runs N sub-strategies and aggregates their results into one
// (spec §4.F secondary variant).
type Composite struct {
	name  string
	subs  []Strategy
	mode  ExecutionMode
	aggr  AggregationMode
}

// NewComposite builds a composite strategy over subs.
func NewComposite(name string, subs []Strategy, mode ExecutionMode, aggr AggregationMode) *Composite {
	return &Composite{name: name, subs: subs, mode: mode, aggr: aggr}
}

func (c *Composite) Name() string    { return c.name }
func (c *Composite) Version() string { return "composite-1" }
func (c *Composite) Tags() []string  { return []string{"composite", string(c.mode), string(c.aggr)} }

func (c *Composite) Execute(ctx context.Context, tc Context) (Result, error) {
	var results []Result
	switch c.mode {
	case ModeSequential:
		// Predecessors may mutate a shared scratch mapping in context.metadata
		// (§4.F): each sub-strategy sees the metadata the previous one wrote.
		if tc.Metadata == nil {
			tc.Metadata = map[string]any{}
		}
		for _, s := range c.subs {
			r, err := s.Execute(ctx, tc)
			if err != nil {
				return Result{}, fmt.Errorf("strategy: composite sequential sub %s: %w", s.Name(), err)
			}
			results = append(results, r)
		}
	case ModeParallel:
		// Independent, later aggregated (§4.F): each sub-strategy gets its
		// own copy of the Context struct; the maps and slices inside it are
		// shared, not cloned.
		for _, s := range c.subs {
			snapshot := tc
			r, err := s.Execute(ctx, snapshot)
			if err != nil {
				return Result{}, fmt.Errorf("strategy: composite parallel sub %s: %w", s.Name(), err)
			}
			results = append(results, r)
		}
	default:
		return Result{}, fmt.Errorf("strategy: unknown execution mode %q", c.mode)
	}
	return aggregate(results, c.aggr)
}

func aggregate(results []Result, mode AggregationMode) (Result, error) {
	var all []Signal
	for _, r := range results {
		all = append(all, r.Signals...)
	}
	switch mode {
	case AggregateFirst:
		for _, s := range all {
			if s.Action != ActionHold {
				return Result{Signals: []Signal{s}}, nil
			}
		}
		return Result{Signals: nil}, nil
	case AggregateWeighted:
		if len(all) == 0 {
			return Result{}, nil
		}
		best := all[0]
		for _, s := range all[1:] {
			if s.Confidence > best.Confidence {
				best = s
			}
		}
		return Result{Signals: []Signal{best}}, nil
	case AggregateVote:
		counts := map[Action]int{}
		for _, s := range all {
			counts[s.Action]++
		}
		var winner Action
		var winnerCount int
		// deterministic tie-break: stable ordering by action priority, then
		// first-seen order.
		seen := map[Action]bool{}
		var order []Action
		for _, s := range all {
			if !seen[s.Action] {
				seen[s.Action] = true
				order = append(order, s.Action)
			}
		}
		sort.SliceStable(order, func(i, j int) bool { return Priority(order[i]) > Priority(order[j]) })
		for _, a := range order {
			if counts[a] > winnerCount {
				winner = a
				winnerCount = counts[a]
			}
		}
		for _, s := range all {
			if s.Action == winner {
				return Result{Signals: []Signal{s}}, nil
			}
		}
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("strategy: unknown aggregation mode %q", mode)
	}
}
