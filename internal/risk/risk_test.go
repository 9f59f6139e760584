package risk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDrawdownCriticalForcesClose reproduces spec §8 scenario R1: a 15.1%
// drawdown crosses the 15% critical threshold and recommends FORCE_CLOSE.
func TestDrawdownCriticalForcesClose(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(10000)
	s.Update(1000, 8490, nil) // (10000-8490)/10000 = 15.1%

	res := CheckRisk(s, 0, cfg)
	require.Equal(t, LevelCritical, res.Level)
	require.Equal(t, ActionForceClose, res.RecommendedAction)
	require.InDelta(t, 15.1, res.Details["drawdown_pct"], 1e-6)
}

func TestDrawdownBelowWarningIsNormal(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(10000)
	s.Update(1000, 9500, nil) // 5% drawdown, below warning threshold 10.0%

	res := CheckRisk(s, 0, cfg)
	require.Equal(t, LevelNone, res.Level)
	require.Equal(t, ActionNone, res.RecommendedAction)
}

// TestDrawdownWarningAtExactThreshold reproduces spec §4.K's literal
// max_drawdown_warning threshold: 10.0%, not the 10.5% an equal-ratio
// shortcut would produce (10/15 != 3.5/5).
func TestDrawdownWarningAtExactThreshold(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(10000)
	s.Update(1000, 9000, nil) // (10000-9000)/10000 = 10.0%

	res := CheckRisk(s, 0, cfg)
	require.Equal(t, LevelWarning, res.Level)
	require.Equal(t, ActionWarn, res.RecommendedAction)
	require.InDelta(t, 10.0, res.Details["drawdown_pct"], 1e-6)
}

func TestDailyLossWarningBelowCritical(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(10000)
	s.Update(1000, 10000, func(string) float64 { return -400 }) // 4% daily loss

	res := CheckRisk(s, 0, cfg)
	require.Equal(t, LevelWarning, res.Level)
	require.Equal(t, ActionWarn, res.RecommendedAction)
}

func TestPositionRatioStopsTrading(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(10000)
	s.Update(1000, 10000, nil)

	res := CheckRisk(s, 0.85, cfg)
	require.Equal(t, ActionStopTrading, res.RecommendedAction)
}

func TestDailyPnLResetsOnUTCDateChange(t *testing.T) {
	s := NewState(10000)
	s.Update(1000, 9000, func(string) float64 { return -1000 })
	require.Equal(t, -1000.0, s.DailyPnL)

	nextDayMs := int64(1000) + int64(36)*3600*1000
	s.Update(nextDayMs, 9000, func(string) float64 { return -50 })
	require.Equal(t, -50.0, s.DailyPnL)
}

func TestPeakEquityIsMonotone(t *testing.T) {
	s := NewState(10000)
	s.Update(1000, 9000, nil)
	require.Equal(t, 10000.0, s.PeakEquity)
	s.Update(2000, 12000, nil)
	require.Equal(t, 12000.0, s.PeakEquity)
	s.Update(3000, 11000, nil)
	require.Equal(t, 12000.0, s.PeakEquity)
}
