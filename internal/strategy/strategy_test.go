package strategy

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedStrategy struct {
	name   string
	action Action
	conf   float64
}

func (f fixedStrategy) Name() string    { return f.name }
func (f fixedStrategy) Version() string { return "1" }
func (f fixedStrategy) Tags() []string  { return nil }
func (f fixedStrategy) Execute(ctx context.Context, tc Context) (Result, error) {
	return Result{Signals: []Signal{{Action: f.action, Symbol: tc.Symbol, Confidence: f.conf}}}, nil
}

func TestPriorityTable(t *testing.T) {
	require.Equal(t, 100, Priority(ActionClose))
	require.Equal(t, 90, Priority(ActionCloseLong))
	require.Equal(t, 90, Priority(ActionCloseShort))
	require.Equal(t, 50, Priority(ActionLong))
	require.Equal(t, 50, Priority(ActionBuy))
	require.Equal(t, 0, Priority(ActionHold))
}

func TestCompositeVoteAggregation(t *testing.T) {
	subs := []Strategy{
		fixedStrategy{name: "a", action: ActionBuy, conf: 0.6},
		fixedStrategy{name: "b", action: ActionBuy, conf: 0.7},
		fixedStrategy{name: "c", action: ActionSell, conf: 0.9},
	}
	c := NewComposite("vote", subs, ModeParallel, AggregateVote)
	res, err := c.Execute(context.Background(), Context{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	require.Equal(t, ActionBuy, res.Signals[0].Action)
}

func TestCompositeFirstAggregationSkipsHold(t *testing.T) {
	subs := []Strategy{
		fixedStrategy{name: "a", action: ActionHold, conf: 0},
		fixedStrategy{name: "b", action: ActionSell, conf: 0.4},
	}
	c := NewComposite("first", subs, ModeSequential, AggregateFirst)
	res, err := c.Execute(context.Background(), Context{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	require.Equal(t, ActionSell, res.Signals[0].Action)
}

func TestCompositeWeightedAggregationPicksHighestConfidence(t *testing.T) {
	subs := []Strategy{
		fixedStrategy{name: "a", action: ActionBuy, conf: 0.3},
		fixedStrategy{name: "b", action: ActionSell, conf: 0.95},
	}
	c := NewComposite("weighted", subs, ModeParallel, AggregateWeighted)
	res, err := c.Execute(context.Background(), Context{Symbol: "BTC/USDT"})
	require.NoError(t, err)
	require.Len(t, res.Signals, 1)
	require.Equal(t, ActionSell, res.Signals[0].Action)
}

func TestMicroModelStrategyNotEnoughData(t *testing.T) {
	m := NewMicroModel(4, rand.New(rand.NewSource(1)))
	s := NewMicroModelStrategy(m, 0.55, 0.45, false)
	res, err := s.Execute(context.Background(), Context{Symbol: "BTC/USDT", MarketData: MarketWindow{Close: []float64{1, 2, 3}}})
	require.NoError(t, err)
	require.Equal(t, ActionHold, res.Signals[0].Action)
	require.Equal(t, "not_enough_data", res.Signals[0].Reason)
}

func TestMicroModelStrategyRequiresIndicators(t *testing.T) {
	m := NewMicroModel(4, rand.New(rand.NewSource(1)))
	s := NewMicroModelStrategy(m, 0.55, 0.45, false)
	close := make([]float64, 10)
	for i := range close {
		close[i] = 100 + float64(i)
	}
	_, err := s.Execute(context.Background(), Context{Symbol: "BTC/USDT", MarketData: MarketWindow{Close: close}})
	require.Error(t, err)
}
