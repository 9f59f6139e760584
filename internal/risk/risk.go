// Package risk implements the two-tier graded risk controller of spec §4.K:
// a fixed rules table evaluated each tick, producing a NONE/WARN/STOP/
// FORCE_CLOSE recommendation the engine must act on.
//
// Grounded on the teacher's daily circuit breaker (trader.go's
// MaxDailyLossPct check and updateDaily's midnight-UTC reset), generalized
// from the teacher's single daily-loss kill switch to the full five-rule
// table of spec §4.K (daily loss, max drawdown — each warning/critical — and
// position-ratio), with the teacher's action taken (stop the bot) mapped
// onto the graded action enum NONE<WARN<STOP<FORCE_CLOSE.
package risk

import (
	"time"
)

// Level is the overall severity the controller reports (spec §4.K).
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "NORMAL"
	}
}

// Action is the recommended engine response, ordered NONE<WARN<STOP<FORCE_CLOSE
// (spec §4.K).
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionStopTrading
	ActionForceClose
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "WARN"
	case ActionStopTrading:
		return "STOP_TRADING"
	case ActionForceClose:
		return "FORCE_CLOSE"
	default:
		return "NONE"
	}
}

// Rule is one entry of the spec §4.K default table.
type Rule struct {
	Name      string
	Level     Level
	Action    Action
	Threshold float64 // percentage points, e.g. 3.5 for 3.5%
}

// Config tunes the rule thresholds (spec §6 "risk" section). Field meanings
// mirror spec §4.K's default table. DailyLossWarningRatio and
// DrawdownWarningRatio are independent since the table's two warning/critical
// pairs do not share one ratio (3.5/5.0 = 0.7, but 10/15 = 0.6667).
type Config struct {
	MaxDailyLossPct       float64
	MaxDrawdownPct        float64
	MaxTotalPositionPct   float64
	DailyLossWarningRatio float64
	DrawdownWarningRatio  float64
}

// DefaultConfig matches the literal thresholds in spec §4.K's table.
func DefaultConfig() Config {
	return Config{
		MaxDailyLossPct:       5.0,
		MaxDrawdownPct:        15.0,
		MaxTotalPositionPct:   80.0,
		DailyLossWarningRatio: 0.7,        // 3.5/5.0
		DrawdownWarningRatio:  10.0 / 15.0, // 10/15, exactly 10.0% warning
	}
}

// rules builds the five-rule table from cfg, matching spec §4.K exactly:
// each warning threshold uses its own ratio of the paired critical one, and
// position_ratio uses MaxTotalPositionPct directly.
func rules(cfg Config) []Rule {
	return []Rule{
		{Name: "daily_loss_warning", Level: LevelWarning, Action: ActionWarn, Threshold: cfg.MaxDailyLossPct * cfg.DailyLossWarningRatio},
		{Name: "daily_loss_critical", Level: LevelCritical, Action: ActionForceClose, Threshold: cfg.MaxDailyLossPct},
		{Name: "max_drawdown_warning", Level: LevelWarning, Action: ActionWarn, Threshold: cfg.MaxDrawdownPct * cfg.DrawdownWarningRatio},
		{Name: "max_drawdown_critical", Level: LevelCritical, Action: ActionForceClose, Threshold: cfg.MaxDrawdownPct},
		{Name: "position_ratio", Level: LevelWarning, Action: ActionStopTrading, Threshold: cfg.MaxTotalPositionPct},
	}
}

// State is the risk controller's running state (spec §3 "Risk state").
// PeakEquity is monotone non-decreasing within a run; DailyPnL resets when
// the UTC date of the tick's time advances.
type State struct {
	PeakEquity       float64
	CurrentEquity    float64
	DailyPnL         float64
	DailyPnLAnchor   string // YYYY-MM-DD, UTC
}

// NewState seeds the controller with the run's starting equity.
func NewState(initialEquity float64) *State {
	return &State{PeakEquity: initialEquity, CurrentEquity: initialEquity}
}

// TriggeredRule is one rule that fired this tick.
type TriggeredRule struct {
	Rule
	Value float64 // the observed percentage that crossed Threshold
}

// Result is what CheckRisk returns each tick (spec §4.K).
type Result struct {
	Level             Level
	TriggeredRules    []TriggeredRule
	RecommendedAction Action
	Details           map[string]float64
}

// Update advances the risk state for a new tick: rolls the daily PnL anchor
// on UTC date change and raises the equity high-water mark.
func (s *State) Update(currentTimeMs int64, currentEquity float64, tradeHistoryDailyPnL func(utcDate string) float64) {
	date := time.UnixMilli(currentTimeMs).UTC().Format("2006-01-02")
	if s.DailyPnLAnchor != date {
		s.DailyPnLAnchor = date
		s.DailyPnL = 0
	}
	if tradeHistoryDailyPnL != nil {
		s.DailyPnL = tradeHistoryDailyPnL(date)
	}
	s.CurrentEquity = currentEquity
	if currentEquity > s.PeakEquity {
		s.PeakEquity = currentEquity
	}
}

// CheckRisk evaluates the rule table against the current state
// (spec §4.K). positionRatio is marginLocked/walletBalance, in [0,1].
func CheckRisk(s *State, positionRatio float64, cfg Config) Result {
	dailyLossPct := 0.0
	if s.PeakEquity > 0 && s.DailyPnL < 0 {
		dailyLossPct = -s.DailyPnL / s.PeakEquity * 100
	}
	drawdownPct := 0.0
	if s.PeakEquity > 0 {
		drawdownPct = (s.PeakEquity - s.CurrentEquity) / s.PeakEquity * 100
	}
	positionRatioPct := positionRatio * 100

	values := map[string]float64{
		"daily_loss_warning":    dailyLossPct,
		"daily_loss_critical":   dailyLossPct,
		"max_drawdown_warning":  drawdownPct,
		"max_drawdown_critical": drawdownPct,
		"position_ratio":        positionRatioPct,
	}

	var triggered []TriggeredRule
	level := LevelNone
	action := ActionNone
	for _, r := range rules(cfg) {
		v := values[r.Name]
		if v >= r.Threshold {
			triggered = append(triggered, TriggeredRule{Rule: r, Value: v})
			if r.Level > level {
				level = r.Level
			}
			if r.Action > action {
				action = r.Action
			}
		}
	}

	return Result{
		Level:             level,
		TriggeredRules:    triggered,
		RecommendedAction: action,
		Details: map[string]float64{
			"daily_loss_pct":    dailyLossPct,
			"drawdown_pct":      drawdownPct,
			"position_ratio_pct": positionRatioPct,
			"peak_equity":       s.PeakEquity,
			"current_equity":    s.CurrentEquity,
		},
	}
}
