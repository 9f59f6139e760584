// Command qengine is the CLI entrypoint: it parses flags/env, wires the
// data center, loader, strategy, and execution engine, starts the
// Prometheus metrics server, dispatches to the backtest/paper/live mode the
// caller selected, and prints the final report (spec §1 "Deliberately out
// of scope": CLI runners, config parsing, report formatting for humans are
// external collaborators — this file is that collaborator, kept minimal).
//
// Grounded on the teacher's main.go boot sequence (load env -> build config
// -> wire broker/model/trader -> start /metrics -> dispatch backtest/live),
// generalized from the teacher's one-broker/one-strategy wiring to the
// data-center/loader/engine pipeline spec §4 names.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/qengine/internal/bar"
	"github.com/chidi150c/qengine/internal/config"
	"github.com/chidi150c/qengine/internal/engine"
	"github.com/chidi150c/qengine/internal/indicator"
	"github.com/chidi150c/qengine/internal/marketdata"
	"github.com/chidi150c/qengine/internal/metrics"
	"github.com/chidi150c/qengine/internal/position"
	"github.com/chidi150c/qengine/internal/report"
	"github.com/chidi150c/qengine/internal/risk"
	"github.com/chidi150c/qengine/internal/signalresolver"
	"github.com/chidi150c/qengine/internal/strategy"
	"github.com/chidi150c/qengine/internal/trader"
)

func main() {
	var (
		mode           string
		csvPath        string
		symbol         string
		interval       string
		family         string
		initialCapital float64
		dotenv         string
		yamlPath       string
		metricsPort    int
		speed          int
	)
	flag.StringVar(&mode, "mode", "backtest", "backtest | paper | live")
	flag.StringVar(&csvPath, "csv", "", "CSV path for backtest/paper bars (time,open,high,low,close,volume)")
	flag.StringVar(&symbol, "symbol", "BTC/USDT", "trading symbol")
	flag.StringVar(&interval, "interval", "1h", "bar interval, per the §6 grammar")
	flag.StringVar(&family, "family", "futures", "events | futures")
	flag.Float64Var(&initialCapital, "capital", 10000, "initial capital")
	flag.StringVar(&dotenv, "dotenv", ".env", "path to .env file (optional)")
	flag.StringVar(&yamlPath, "config", "", "path to YAML config file (optional)")
	flag.IntVar(&metricsPort, "metrics-port", 9090, "Prometheus /metrics port")
	flag.IntVar(&speed, "speed", 50, "replay speed factor s in [0,999], §5")
	flag.Parse()

	cfg := config.Load(dotenv, yamlPath, nil)

	iv, err := bar.ParseInterval(interval)
	if err != nil {
		log.Fatalf("qengine: %v", err)
	}
	intervalMs, err := iv.Milliseconds()
	if err != nil {
		log.Fatalf("qengine: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Global.LogLevel)}))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", metricsPort), Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("qengine: metrics server: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var bars []bar.Bar
	if csvPath != "" {
		bars, err = marketdata.LoadCSVBars(csvPath, intervalMs)
		if err != nil {
			log.Fatalf("qengine: load csv: %v", err)
		}
	}
	if err := bar.ValidateSequence(bars, intervalMs); err != nil {
		log.Fatalf("qengine: %v", err)
	}

	cache := marketdata.NewCache(time.Duration(cfg.DataCenter.CacheTTLSeconds)*time.Second, cfg.DataCenter.CacheMaxEntries)
	breakers := marketdata.NewBreakerRegistry(marketdata.BreakerConfig{
		FailureThreshold: uint32(cfg.DataCenter.BreakerFailureThreshold),
		Cooldown:         time.Duration(cfg.DataCenter.BreakerCooldownSeconds) * time.Second,
		MaxRetries:       cfg.DataCenter.MaxRetries,
		RetryBaseDelay:   time.Duration(cfg.DataCenter.RetryDelaySeconds*1000) * time.Millisecond,
	})

	var adapter marketdata.Adapter
	if mode == "live" && cfg.DataCenter.BaseURL != "" {
		httpAdapter := marketdata.NewHTTPAdapter(mode, cfg.DataCenter.BaseURL,
			cfg.DataCenter.MaxRetries, time.Duration(cfg.DataCenter.RequestTimeoutSeconds)*time.Second)
		wsAdapter := marketdata.NewWSFuturesAdapter(httpAdapter, wsStreamURL(cfg.DataCenter.BaseURL), logger)
		go wsAdapter.Run(ctx)
		adapter = wsAdapter
	} else {
		adapter = marketdata.NewSimAdapter(mode, bars, intervalMs)
	}
	dc := marketdata.NewDataCenter(map[marketdata.AdapterKey]marketdata.Adapter{
		{Exchange: mode, MarketType: marketdata.MarketSpot}:    adapter,
		{Exchange: mode, MarketType: marketdata.MarketFutures}: adapter,
	}, cache, breakers, cfg.DataCenter.EnableCache, logger)

	var startMs, endMs int64
	if len(bars) > 0 {
		startMs = bars[0].OpenTimeMs
		endMs = bars[len(bars)-1].CloseTimeMs
	}
	req := marketdata.MarketDataRequest{
		Exchange: mode, MarketType: marketdata.MarketSpot, Symbol: bar.Symbol(symbol), Interval: iv,
		StartMs: startMs, EndMs: endMs,
	}
	loader, err := marketdata.NewLoader(dc, req, cfg.Engine.BatchSize, cfg.Engine.PreloadEnabled, logger)
	if err != nil {
		log.Fatalf("qengine: loader: %v", err)
	}

	// The demo micro-model strategy needs rsi14/zscore20 (and, with its MA
	// filter on, ema4/ema8); union those with whatever §6 engine.default_indicators
	// names so a caller's config additions are never dropped.
	required := []string{"rsi14", "zscore20", "ema4", "ema8"}
	names := uniqueStrings(append(append([]string{}, cfg.Engine.DefaultIndicators...), required...))
	specs := make([]indicator.Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, defaultIndicatorSpec(name))
	}
	indicators, err := indicator.NewSet(specs)
	if err != nil {
		log.Fatalf("qengine: indicators: %v", err)
	}

	model := strategy.NewMicroModel(4, rand.New(rand.NewSource(1)))
	strat := strategy.NewMicroModelStrategy(model, 0.55, 0.45, true)

	// Speed-controlled batching applies to replay only (§5): paper and live
	// emit every tick.
	if mode != "backtest" {
		speed = 0
	}

	fam := engine.FamilyFutures
	if family == "events" {
		fam = engine.FamilyEvents
	}

	engCfg := engine.Config{
		Symbol:         symbol,
		Interval:       iv,
		Family:         fam,
		InitialCapital: initialCapital,
		Position: position.Config{
			Leverage:               cfg.Trading.DefaultLeverage,
			PositionSizePct:        cfg.Trading.DefaultPositionSizePct,
			TakerFee:               cfg.Trading.TakerFee,
			Slippage:               cfg.Trading.Slippage,
			MaintenanceMarginRatio: cfg.Trading.MaintenanceMarginRatio,
		},
		EventsTrading: trader.EventsConfig{InvestmentAmount: 100, PayoutMultiplier: 1.8},
		Resolver:      signalresolver.DefaultConfig(),
		Risk: risk.Config{
			MaxDailyLossPct:       cfg.Risk.MaxDailyLossPct,
			MaxDrawdownPct:        cfg.Risk.MaxDrawdownPct,
			MaxTotalPositionPct:   cfg.Risk.MaxTotalPositionPct,
			DailyLossWarningRatio: cfg.Risk.DailyLossWarningRatio,
			DrawdownWarningRatio:  cfg.Risk.DrawdownWarningRatio,
		},
		Speed: speed,
	}

	eng := engine.New(engCfg, strat, loader, indicators, logger)

	for evt := range eng.Run(ctx) {
		handleEvent(evt, logger)
	}

	rep := eng.Report(report.DefaultConfig())
	printReport(rep)

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

func handleEvent(evt engine.Event, logger *slog.Logger) {
	switch evt.Type {
	case engine.EventTrade:
		metrics.IncTrades()
		logger.Info("trade", "data", evt.Data, "ts", evt.TimestampMs)
	case engine.EventWarning:
		metrics.IncWarnings()
		if lvl, ok := evt.Data["risk_level"].(string); ok {
			metrics.SetRiskLevel(lvl)
		}
		logger.Warn("warning", "data", evt.Data, "ts", evt.TimestampMs)
	case engine.EventTick:
		if eq, ok := evt.Data["equity"].(float64); ok {
			metrics.SetEquity(eq)
		}
		if dd, ok := evt.Data["drawdown_pct"].(float64); ok {
			metrics.SetDrawdownPct(dd)
		}
		logger.Debug("tick", "data", evt.Data, "ts", evt.TimestampMs)
	case engine.EventError:
		logger.Error("error", "data", evt.Data, "ts", evt.TimestampMs)
	case engine.EventComplete:
		logger.Info("complete", "data", evt.Data, "ts", evt.TimestampMs)
	case engine.EventProgress:
		logger.Debug("progress", "data", evt.Data, "ts", evt.TimestampMs)
	}
}

func printReport(r report.Report) {
	b, _ := json.MarshalIndent(r, "", "  ")
	fmt.Println(string(b))
}

// defaultIndicatorSpec parses a name like "sma20"/"rsi14"/"zscore20" into a
// Spec by splitting the trailing digits (the period) from the leading kind
// prefix; "macd"/"obv" take no period.
func defaultIndicatorSpec(name string) indicator.Spec {
	switch {
	case name == "macd":
		return indicator.Spec{Name: name, Kind: indicator.KindMACD}
	case name == "obv":
		return indicator.Spec{Name: name, Kind: indicator.KindOBV}
	}
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	prefix, digits := name[:i], name[i:]
	period := 20
	if digits != "" {
		fmt.Sscanf(digits, "%d", &period)
	}
	var kind indicator.Kind
	switch prefix {
	case "sma":
		kind = indicator.KindSMA
	case "ema":
		kind = indicator.KindEMA
	case "rsi":
		kind = indicator.KindRSI
	case "atr":
		kind = indicator.KindATR
	case "zscore":
		kind = indicator.KindZScore
	default:
		kind = indicator.KindSMA
	}
	return indicator.Spec{Name: name, Kind: kind, Period: period}
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// wsStreamURL derives the live mark-price stream endpoint from the REST
// base URL (http(s)://host -> ws(s)://host/stream), since this pack's
// exchange adapters expose both surfaces off the same host.
func wsStreamURL(baseURL string) string {
	switch {
	case len(baseURL) >= 5 && baseURL[:5] == "https":
		return "wss" + baseURL[5:] + "/stream"
	case len(baseURL) >= 4 && baseURL[:4] == "http":
		return "ws" + baseURL[4:] + "/stream"
	default:
		return baseURL + "/stream"
	}
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
