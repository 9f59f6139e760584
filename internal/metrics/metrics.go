// Package metrics exposes the engine's Prometheus series.
//
// Grounded on the teacher's metrics.go (bot_orders_total, bot_equity_usd,
// bot_trades_total, etc.), generalized from the teacher's spot-bot series to
// this engine's domain: equity, drawdown, circuit-breaker state, risk
// level, and trade/warning counts, registered and exposed the same way
// (prometheus.MustRegister in init(), served at /metrics by the caller's
// promhttp.Handler()).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qengine_equity_usd",
		Help: "Current equity snapshot in USD.",
	})

	drawdownPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qengine_drawdown_pct",
		Help: "Current drawdown from peak equity, as a fraction.",
	})

	tradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qengine_trades_total",
		Help: "Count of closed trade records emitted by the engine.",
	})

	warningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "qengine_warnings_total",
		Help: "Count of warning events emitted by the engine.",
	})

	riskLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qengine_risk_level",
		Help: "Risk controller level indicator (one labeled series per level, 0/1).",
	}, []string{"level"})

	circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qengine_circuit_breaker_state",
		Help: "Circuit breaker state per service (one labeled series per state, 0/1).",
	}, []string{"service", "state"})
)

func init() {
	prometheus.MustRegister(equity, drawdownPct, tradesTotal, warningsTotal, riskLevel, circuitState)
}

// SetEquity reports the current equity snapshot.
func SetEquity(v float64) { equity.Set(v) }

// SetDrawdownPct reports the current fractional drawdown from peak equity.
func SetDrawdownPct(v float64) { drawdownPct.Set(v) }

// IncTrades counts one more closed trade record.
func IncTrades() { tradesTotal.Inc() }

// IncWarnings counts one more warning event.
func IncWarnings() { warningsTotal.Inc() }

// SetRiskLevel flips the labeled risk-level series so exactly one reads 1.
func SetRiskLevel(level string) {
	for _, l := range []string{"NORMAL", "WARNING", "CRITICAL"} {
		if l == level {
			riskLevel.WithLabelValues(l).Set(1)
		} else {
			riskLevel.WithLabelValues(l).Set(0)
		}
	}
}

// SetCircuitState flips the labeled per-service breaker-state series.
func SetCircuitState(service, state string) {
	for _, s := range []string{"CLOSED", "OPEN", "HALF_OPEN"} {
		if s == state {
			circuitState.WithLabelValues(service, s).Set(1)
		} else {
			circuitState.WithLabelValues(service, s).Set(0)
		}
	}
}
