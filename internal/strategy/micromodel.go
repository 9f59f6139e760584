package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
)

// MicroModel is a tiny logistic-regression-style directional-bias model,
// adapted verbatim in algorithm from the teacher's model.go AIMicroModel
// (sigmoid(w·x + b) over hand-crafted features): same weight/bias shape and
// prediction, generalized to accept any feature vector length instead of a
// hardcoded 4.
type MicroModel struct {
	W []float64
	B float64
}

// NewMicroModel builds a model with the given feature count, seeded with
// small random weights exactly as the teacher's newModel does.
func NewMicroModel(numFeatures int, rng *rand.Rand) *MicroModel {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	w := make([]float64, numFeatures)
	for i := range w {
		w[i] = rng.NormFloat64() * 0.01
	}
	return &MicroModel{W: w}
}

func sigmoid(x float64) float64 {
	if x > 20 {
		return 1
	}
	if x < -20 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// Predict returns P(up) for the given feature vector; 0.5 (no opinion) if
// the shape doesn't match, matching the teacher's defensive default.
func (m *MicroModel) Predict(features []float64) float64 {
	if len(features) != len(m.W) {
		return 0.5
	}
	z := m.B
	for i := range features {
		z += m.W[i] * features[i]
	}
	return sigmoid(z)
}

// Fit performs gradient-descent steps on cross-entropy loss over
// (features, label) pairs, carried over from the teacher's fit/buildDataset
// split into a library-agnostic form that takes pre-built features.
func (m *MicroModel) Fit(feats [][]float64, labels []float64, lr float64, epochs int) {
	for e := 0; e < epochs; e++ {
		for i := range feats {
			p := m.Predict(feats[i])
			y := labels[i]
			grad := p - y
			for j := range m.W {
				m.W[j] -= lr * grad * feats[i][j]
			}
			m.B -= lr * grad
		}
	}
}

// MicroModelStrategy wires MicroModel + an EMA crossover regime filter into
// the Strategy contract, adapted from the teacher's strategy.go decide():
// same pUp-vs-threshold logic and EMA4/EMA8 "HighPeak/LowBottom" regime
// gating, generalized to emit a spec §3 Signal instead of a bespoke Decision
// struct and to read EMA values from the tick's precomputed Indicators map
// (populated by internal/indicator) instead of recomputing them inline.
type MicroModelStrategy struct {
	model         *MicroModel
	buyThreshold  float64
	sellThreshold float64
	useMAFilter   bool
}

// NewMicroModelStrategy builds the demo strategy. Feature order matches the
// teacher's: [ret1, ret5, rsi14/100, zscore20].
func NewMicroModelStrategy(model *MicroModel, buyThreshold, sellThreshold float64, useMAFilter bool) *MicroModelStrategy {
	return &MicroModelStrategy{model: model, buyThreshold: buyThreshold, sellThreshold: sellThreshold, useMAFilter: useMAFilter}
}

func (s *MicroModelStrategy) Name() string    { return "micro_model" }
func (s *MicroModelStrategy) Version() string { return "1.0.0" }
func (s *MicroModelStrategy) Tags() []string  { return []string{"ml", "regime-filter"} }

func (s *MicroModelStrategy) GetDataRequirements(interval string) DataRequirements {
	return DataRequirements{MinBars: 40, WarmupPeriods: 20, PreferClosedBar: true}
}

func (s *MicroModelStrategy) Execute(ctx context.Context, tc Context) (Result, error) {
	close := tc.MarketData.Close
	i := len(close) - 1
	if i < 6 {
		return Result{Signals: []Signal{{Action: ActionHold, Symbol: tc.Symbol, Confidence: 0, Reason: "not_enough_data"}}}, nil
	}

	rsi := tc.Indicators["rsi14"]
	zs := tc.Indicators["zscore20"]
	ema4 := tc.Indicators["ema4"]
	ema8 := tc.Indicators["ema8"]
	if rsi == nil || zs == nil || len(rsi) <= i || len(zs) <= i {
		return Result{}, fmt.Errorf("strategy: micro_model requires rsi14 and zscore20 indicators")
	}

	ret1 := (close[i] - close[i-1]) / close[i-1]
	ret5 := (close[i] - close[i-5]) / close[i-5]
	rsiVal := rsi[i]
	if math.IsNaN(rsiVal) {
		rsiVal = 50
	}
	zsVal := zs[i]
	if math.IsNaN(zsVal) {
		zsVal = 0
	}
	features := []float64{ret1, ret5, rsiVal / 100.0, zsVal}
	pUp := s.model.Predict(features)

	buyMA, sellMA := false, false
	if s.useMAFilter && ema4 != nil && ema8 != nil && len(ema4) > i && len(ema8) > i && i >= 3 {
		fast, slow := ema4[i], ema8[i]
		fast3, slow3 := ema4[i-3], ema8[i-3]
		if !math.IsNaN(fast) && !math.IsNaN(slow) && !math.IsNaN(fast3) && !math.IsNaN(slow3) {
			highPeak := slow3 < fast3 && slow-fast < slow3-fast3 && slow < fast
			lowBottom := fast3 < slow3 && fast-slow < fast3-slow3 && fast < slow
			buyMA = lowBottom
			sellMA = highPeak
		}
	}

	reason := fmt.Sprintf("pUp=%.4f", pUp)
	switch {
	case pUp > s.buyThreshold && (!s.useMAFilter || buyMA):
		return Result{Signals: []Signal{{Action: ActionBuy, Symbol: tc.Symbol, Confidence: pUp, Reason: reason}}}, nil
	case pUp < s.sellThreshold && (!s.useMAFilter || sellMA):
		return Result{Signals: []Signal{{Action: ActionSell, Symbol: tc.Symbol, Confidence: 1 - pUp, Reason: reason}}}, nil
	default:
		return Result{Signals: []Signal{{Action: ActionHold, Symbol: tc.Symbol, Confidence: 0.5, Reason: reason}}}, nil
	}
}

var _ Strategy = (*MicroModelStrategy)(nil)
var _ DataRequirer = (*MicroModelStrategy)(nil)
