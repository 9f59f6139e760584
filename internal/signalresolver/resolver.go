// Package signalresolver implements the spec §4.G signal resolver: applied
// after the strategy contract (F) and before the traders (J), it filters by
// confidence, resolves same-direction/opposite-direction/HOLD conflicts, and
// applies the priority table for stable ordering.
//
// There is no teacher equivalent — the teacher's strategy.go emits exactly
// one Decision per tick, so nothing in it needed conflict resolution across
// multiple simultaneous signals. This package is grounded on the teacher's
// general style (small pure functions, a single exported entry point) rather
// than on any specific resolver code, since spec §4.G's algorithm is fully
// prescriptive and leaves no implementation choice to ground elsewhere.
package signalresolver

import (
	"github.com/chidi150c/qengine/internal/strategy"
)

// Config tunes the resolver (spec §4.G).
type Config struct {
	MinConfidence      float64
	PreferCloseSignals bool
}

// DefaultConfig matches spec §4.G's stated default.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.5, PreferCloseSignals: true}
}

// direction buckets non-close actions into one of four canonical families
// for step 3 of §4.G ("bucket remaining signals by canonical direction").
type direction int

const (
	dirNone direction = iota
	dirLongOpen
	dirShortOpen
	dirBuy
	dirSell
)

func bucketOf(a strategy.Action) direction {
	switch a {
	case strategy.ActionLong:
		return dirLongOpen
	case strategy.ActionShort:
		return dirShortOpen
	case strategy.ActionBuy, strategy.ActionUp:
		return dirBuy
	case strategy.ActionSell, strategy.ActionDown:
		return dirSell
	default:
		return dirNone
	}
}

// dirOpposite pairs buy<->sell and long<->short for step 5's
// opposite-direction resolution.
func dirOpposite(d direction) direction {
	switch d {
	case dirLongOpen:
		return dirShortOpen
	case dirShortOpen:
		return dirLongOpen
	case dirBuy:
		return dirSell
	case dirSell:
		return dirBuy
	default:
		return dirNone
	}
}

// Resolve applies the §4.G algorithm to one tick's candidate signals.
func Resolve(signals []strategy.Signal, cfg Config) []strategy.Signal {
	// Step 1: drop every signal with confidence < min_confidence.
	var kept []strategy.Signal
	for _, s := range signals {
		if s.Confidence >= cfg.MinConfidence {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil
	}

	// Step 2: if prefer_close_signals, extract close-family signals; if any
	// exist, emit them and discard non-close signals for this tick.
	if cfg.PreferCloseSignals {
		var closes []strategy.Signal
		for _, s := range kept {
			if strategy.IsCloseFamily(s.Action) {
				closes = append(closes, s)
			}
		}
		if len(closes) > 0 {
			return orderByPriority(dedupeByAction(closes))
		}
	}

	// Step 3+4: bucket remaining (non-close) signals by canonical direction,
	// keeping the highest-confidence signal per bucket (ties: first in input
	// order).
	buckets := map[direction]strategy.Signal{}
	bucketSet := map[direction]bool{}
	var holds []strategy.Signal
	for _, s := range kept {
		if strategy.IsCloseFamily(s.Action) {
			continue // already handled above, or prefer_close_signals is off
		}
		if s.Action == strategy.ActionHold {
			holds = append(holds, s)
			continue
		}
		d := bucketOf(s.Action)
		if d == dirNone {
			continue
		}
		if !bucketSet[d] || s.Confidence > buckets[d].Confidence {
			buckets[d] = s
			bucketSet[d] = true
		}
	}

	// Step 5: across buckets, resolve opposites — keep the higher
	// confidence; if exactly equal, cancel both and emit nothing.
	resolved := map[direction]strategy.Signal{}
	handled := map[direction]bool{}
	for d := range buckets {
		if handled[d] {
			continue
		}
		opp := dirOpposite(d)
		oppSig, hasOpp := buckets[opp]
		if !hasOpp || opp == dirNone {
			resolved[d] = buckets[d]
			handled[d] = true
			continue
		}
		sig := buckets[d]
		switch {
		case sig.Confidence > oppSig.Confidence:
			resolved[d] = sig
		case oppSig.Confidence > sig.Confidence:
			resolved[opp] = oppSig
		default:
			// exactly equal: cancel both, emit nothing from this pair
		}
		handled[d] = true
		handled[opp] = true
	}

	var out []strategy.Signal
	for _, d := range []direction{dirLongOpen, dirShortOpen, dirBuy, dirSell} {
		if s, ok := resolved[d]; ok {
			out = append(out, s)
		}
	}

	// Step 6: drop HOLD whenever any non-HOLD signal was present, even if
	// opposite-direction cancellation left it emitting nothing this tick
	// (spec §4.G rule 6, §8 scenario S1: LONG/SHORT at equal confidence
	// cancel and the tick's output is empty, not [HOLD]).
	if len(buckets) == 0 {
		out = append(out, holds...)
	}

	return orderByPriority(out)
}

func dedupeByAction(signals []strategy.Signal) []strategy.Signal {
	best := map[strategy.Action]strategy.Signal{}
	seen := map[strategy.Action]bool{}
	var order []strategy.Action
	for _, s := range signals {
		if !seen[s.Action] {
			order = append(order, s.Action)
		}
		if !seen[s.Action] || s.Confidence > best[s.Action].Confidence {
			best[s.Action] = s
			seen[s.Action] = true
		}
	}
	var out []strategy.Signal
	for _, a := range order {
		out = append(out, best[a])
	}
	return orderByPriority(out)
}

// orderByPriority gives the result a stable order per the §4.G priority
// table, for deterministic downstream consumption and test comparison.
func orderByPriority(signals []strategy.Signal) []strategy.Signal {
	out := make([]strategy.Signal, len(signals))
	copy(out, signals)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && strategy.Priority(out[j].Action) > strategy.Priority(out[j-1].Action); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
