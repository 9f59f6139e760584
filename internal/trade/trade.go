// Package trade defines the TradeRecord shared by the position manager,
// the traders, and the report builder (spec §3, §4.M).
//
// Grounded on the teacher's ExitRecord (trader.go): a flat struct stamped at
// close time with prices, fees, and realized PnL, generalized from the
// teacher's single-asset spot fields to the futures/events-agnostic shape
// spec §3 names (entry/exit time+price, quantity, pnl_pct, holding_period).
package trade

import "time"

// Record is one closed (or, for events, resolved) trade (spec §3).
type Record struct {
	TradeID       string
	Symbol        string
	Action        string
	EntryTimeMs   int64
	EntryPrice    float64
	ExitTimeMs    int64 // 0 when not yet closed
	ExitPrice     float64
	Quantity      float64
	PnL           float64
	PnLPct        float64
	Fees          float64
	HoldingPeriod time.Duration
}

// Closed reports whether this record has an exit stamped on it.
func (r Record) Closed() bool { return r.ExitTimeMs != 0 }
