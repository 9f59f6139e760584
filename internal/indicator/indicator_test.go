package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func closeSeries(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

func TestComputeAlignsWarmupAsNaN(t *testing.T) {
	set, err := NewSet([]Spec{
		{Name: "sma3", Kind: KindSMA, Period: 3},
		{Name: "rsi14", Kind: KindRSI, Period: 14},
		{Name: "zscore5", Kind: KindZScore, Period: 5},
	})
	require.NoError(t, err)

	close := closeSeries(20, 100)
	out, err := set.Compute(Window{Close: close})
	require.NoError(t, err)

	require.Len(t, out["sma3"], 20)
	require.True(t, math.IsNaN(out["sma3"][0]))
	require.True(t, math.IsNaN(out["sma3"][1]))
	require.False(t, math.IsNaN(out["sma3"][2]))

	require.True(t, math.IsNaN(out["zscore5"][3]))
	require.False(t, math.IsNaN(out["zscore5"][4]))
}

func TestComputeRejectsUnknownKind(t *testing.T) {
	_, err := NewSet([]Spec{{Name: "bogus", Kind: "nope", Period: 1}})
	require.Error(t, err)
}

func TestComputeRequiresAlignedVolumeForOBV(t *testing.T) {
	set, err := NewSet([]Spec{{Name: "obv", Kind: KindOBV}})
	require.NoError(t, err)
	_, err = set.Compute(Window{Close: closeSeries(5, 1)})
	require.Error(t, err)
}

func TestZScoreMatchesHandRolledFormula(t *testing.T) {
	close := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	out := zscore(close, 4)
	// at i=3 (first full window of 4: 1,2,3,4), mean=2.5, variance=1.25
	mean := 2.5
	variance := 1.25
	want := (4 - mean) / math.Sqrt(variance)
	require.InDelta(t, want, out[3], 1e-6)
}
