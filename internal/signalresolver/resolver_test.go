package signalresolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/qengine/internal/strategy"
)

// TestOppositeDirectionsOfEqualConfidenceCancel reproduces spec §8 scenario
// S1: LONG and SHORT at equal confidence cancel each other, and the HOLD is
// not re-admitted since a non-HOLD signal was present in the input — the
// resolved output is empty.
func TestOppositeDirectionsOfEqualConfidenceCancel(t *testing.T) {
	signals := []strategy.Signal{
		{Action: strategy.ActionLong, Confidence: 0.7},
		{Action: strategy.ActionShort, Confidence: 0.7},
		{Action: strategy.ActionHold, Confidence: 1.0},
	}
	out := Resolve(signals, DefaultConfig())
	require.Empty(t, out)
}

// TestHigherConfidenceWins reproduces spec §8 scenario S1's second case.
func TestHigherConfidenceWins(t *testing.T) {
	signals := []strategy.Signal{
		{Action: strategy.ActionLong, Confidence: 0.9},
		{Action: strategy.ActionShort, Confidence: 0.7},
	}
	out := Resolve(signals, DefaultConfig())
	require.Len(t, out, 1)
	require.Equal(t, strategy.ActionLong, out[0].Action)
	require.InDelta(t, 0.9, out[0].Confidence, 1e-9)
}

func TestBelowMinConfidenceDropped(t *testing.T) {
	signals := []strategy.Signal{
		{Action: strategy.ActionLong, Confidence: 0.3},
	}
	out := Resolve(signals, DefaultConfig())
	require.Empty(t, out)
}

func TestCloseSignalsPreemptOpens(t *testing.T) {
	signals := []strategy.Signal{
		{Action: strategy.ActionLong, Confidence: 0.9},
		{Action: strategy.ActionCloseLong, Confidence: 0.6},
	}
	out := Resolve(signals, DefaultConfig())
	require.Len(t, out, 1)
	require.Equal(t, strategy.ActionCloseLong, out[0].Action)
}

func TestPriorityOrdersCloseBeforeCloseLong(t *testing.T) {
	signals := []strategy.Signal{
		{Action: strategy.ActionClose, Confidence: 0.9},
		{Action: strategy.ActionCloseLong, Confidence: 0.9},
	}
	out := Resolve(signals, Config{MinConfidence: 0.5, PreferCloseSignals: true})
	require.Len(t, out, 2)
	require.Equal(t, strategy.ActionClose, out[0].Action)
	require.Equal(t, strategy.ActionCloseLong, out[1].Action)
}
