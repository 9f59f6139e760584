// Package config models the engine's runtime configuration surface (§6) and
// loads it from layered sources: explicit caller values, environment
// variables (via a .env file loaded by godotenv, mirroring the teacher's
// env.go), a YAML configuration file, and embedded defaults — in that order
// of precedence, highest first.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DataCenter holds market-data facade knobs (§4.C, §6).
type DataCenter struct {
	BaseURL              string  `yaml:"base_url"`
	EnableCache          bool    `yaml:"enable_cache"`
	CacheTTLSeconds      int     `yaml:"cache_ttl_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxRetries           int     `yaml:"max_retries"`
	RetryDelaySeconds    float64 `yaml:"retry_delay_seconds"`
	CacheMaxEntries      int     `yaml:"cache_max_entries"`
	BreakerFailureThreshold int  `yaml:"breaker_failure_threshold"`
	BreakerCooldownSeconds  int  `yaml:"breaker_cooldown_seconds"`
}

// Trading holds instrument economics (§4.I, §6).
type Trading struct {
	DefaultLeverage             float64 `yaml:"default_leverage"`
	DefaultPositionSizePct      float64 `yaml:"default_position_size_pct"`
	TakerFee                    float64 `yaml:"taker_fee"`
	MakerFee                    float64 `yaml:"maker_fee"`
	Slippage                    float64 `yaml:"slippage"`
	MaintenanceMarginRatio      float64 `yaml:"maintenance_margin_ratio"`
	FundingRateIntervalSeconds  int     `yaml:"funding_rate_interval_seconds"`
}

// Engine holds execution-loop knobs (§4.D, §4.L, §5, §6).
type Engine struct {
	BatchSize         int      `yaml:"batch_size"`
	PreloadEnabled    bool     `yaml:"preload_enabled"`
	MaxSpeed          int      `yaml:"max_speed"`
	DefaultIndicators []string `yaml:"default_indicators"`
}

// Risk holds graded risk-rule thresholds (§4.K, §6). DailyLossWarningRatio
// and DrawdownWarningRatio are independent: the table's two warning/critical
// pairs do not share one ratio (3.5/5.0 = 0.7, but 10/15 = 0.6667).
type Risk struct {
	MaxDailyLossPct       float64 `yaml:"max_daily_loss_pct"`
	MaxDrawdownPct        float64 `yaml:"max_drawdown_pct"`
	MaxTotalPositionPct   float64 `yaml:"max_total_position_pct"`
	DailyLossWarningRatio float64 `yaml:"daily_loss_warning_ratio"`
	DrawdownWarningRatio  float64 `yaml:"drawdown_warning_ratio"`
}

// Global holds process-wide knobs (§6).
type Global struct {
	Timezone string `yaml:"timezone"`
	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

// Config is the complete recognized configuration surface (§6).
type Config struct {
	DataCenter DataCenter `yaml:"data_center"`
	Trading    Trading    `yaml:"trading"`
	Engine     Engine     `yaml:"engine"`
	Risk       Risk       `yaml:"risk"`
	Global     Global     `yaml:"global"`
}

// Defaults returns the embedded defaults (lowest precedence tier).
func Defaults() Config {
	return Config{
		DataCenter: DataCenter{
			BaseURL:                 "http://127.0.0.1:8787",
			EnableCache:             true,
			CacheTTLSeconds:         300,
			RequestTimeoutSeconds:   15,
			MaxRetries:              3,
			RetryDelaySeconds:       0.5,
			CacheMaxEntries:         2048,
			BreakerFailureThreshold: 5,
			BreakerCooldownSeconds:  30,
		},
		Trading: Trading{
			DefaultLeverage:            10,
			DefaultPositionSizePct:     0.1,
			TakerFee:                   0.0004,
			MakerFee:                   0.0002,
			Slippage:                   0.0005,
			MaintenanceMarginRatio:     0.004,
			FundingRateIntervalSeconds: 28800,
		},
		Engine: Engine{
			BatchSize:         500,
			PreloadEnabled:    true,
			MaxSpeed:          50,
			DefaultIndicators: []string{"sma20", "rsi14"},
		},
		Risk: Risk{
			MaxDailyLossPct:       5.0,
			MaxDrawdownPct:        15.0,
			MaxTotalPositionPct:   80.0,
			DailyLossWarningRatio: 0.7,        // 3.5/5.0
			DrawdownWarningRatio:  10.0 / 15.0, // 10/15, exactly 10.0% warning
		},
		Global: Global{
			Timezone: "UTC",
			LogLevel: "info",
			Debug:    false,
		},
	}
}

// Load applies, in increasing precedence: embedded defaults, an optional
// YAML file at yamlPath (ignored if empty or missing), environment variables
// (after loading dotenvPath via godotenv if present), then overrides.
// overrides may be nil; for the fields mergeNonZero lists, any non-zero value
// the caller has set on it is taken verbatim as the highest-precedence tier.
func Load(dotenvPath, yamlPath string, overrides *Config) Config {
	cfg := Defaults()

	if dotenvPath != "" {
		_ = godotenv.Load(dotenvPath) // missing .env is not an error; env may be set another way
	}

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	applyEnv(&cfg)

	if overrides != nil {
		mergeNonZero(&cfg, overrides)
	}
	return cfg
}

func applyEnv(c *Config) {
	c.DataCenter.BaseURL = getEnv("QE_DC_BASE_URL", c.DataCenter.BaseURL)
	c.DataCenter.EnableCache = getEnvBool("QE_DC_ENABLE_CACHE", c.DataCenter.EnableCache)
	c.DataCenter.CacheTTLSeconds = getEnvInt("QE_DC_CACHE_TTL_SECONDS", c.DataCenter.CacheTTLSeconds)
	c.DataCenter.RequestTimeoutSeconds = getEnvInt("QE_DC_REQUEST_TIMEOUT_SECONDS", c.DataCenter.RequestTimeoutSeconds)
	c.DataCenter.MaxRetries = getEnvInt("QE_DC_MAX_RETRIES", c.DataCenter.MaxRetries)
	c.DataCenter.RetryDelaySeconds = getEnvFloat("QE_DC_RETRY_DELAY_SECONDS", c.DataCenter.RetryDelaySeconds)
	c.DataCenter.CacheMaxEntries = getEnvInt("QE_DC_CACHE_MAX_ENTRIES", c.DataCenter.CacheMaxEntries)
	c.DataCenter.BreakerFailureThreshold = getEnvInt("QE_DC_BREAKER_FAILURE_THRESHOLD", c.DataCenter.BreakerFailureThreshold)
	c.DataCenter.BreakerCooldownSeconds = getEnvInt("QE_DC_BREAKER_COOLDOWN_SECONDS", c.DataCenter.BreakerCooldownSeconds)

	c.Trading.DefaultLeverage = getEnvFloat("QE_TRADING_DEFAULT_LEVERAGE", c.Trading.DefaultLeverage)
	c.Trading.DefaultPositionSizePct = getEnvFloat("QE_TRADING_DEFAULT_POSITION_SIZE_PCT", c.Trading.DefaultPositionSizePct)
	c.Trading.TakerFee = getEnvFloat("QE_TRADING_TAKER_FEE", c.Trading.TakerFee)
	c.Trading.MakerFee = getEnvFloat("QE_TRADING_MAKER_FEE", c.Trading.MakerFee)
	c.Trading.Slippage = getEnvFloat("QE_TRADING_SLIPPAGE", c.Trading.Slippage)
	c.Trading.MaintenanceMarginRatio = getEnvFloat("QE_TRADING_MAINTENANCE_MARGIN_RATIO", c.Trading.MaintenanceMarginRatio)
	c.Trading.FundingRateIntervalSeconds = getEnvInt("QE_TRADING_FUNDING_RATE_INTERVAL_SECONDS", c.Trading.FundingRateIntervalSeconds)

	c.Engine.BatchSize = getEnvInt("QE_ENGINE_BATCH_SIZE", c.Engine.BatchSize)
	c.Engine.PreloadEnabled = getEnvBool("QE_ENGINE_PRELOAD_ENABLED", c.Engine.PreloadEnabled)
	c.Engine.MaxSpeed = getEnvInt("QE_ENGINE_MAX_SPEED", c.Engine.MaxSpeed)
	if v := strings.TrimSpace(os.Getenv("QE_ENGINE_DEFAULT_INDICATORS")); v != "" {
		c.Engine.DefaultIndicators = strings.Split(v, ",")
	}

	c.Risk.MaxDailyLossPct = getEnvFloat("QE_RISK_MAX_DAILY_LOSS_PCT", c.Risk.MaxDailyLossPct)
	c.Risk.MaxDrawdownPct = getEnvFloat("QE_RISK_MAX_DRAWDOWN_PCT", c.Risk.MaxDrawdownPct)
	c.Risk.MaxTotalPositionPct = getEnvFloat("QE_RISK_MAX_TOTAL_POSITION_PCT", c.Risk.MaxTotalPositionPct)
	c.Risk.DailyLossWarningRatio = getEnvFloat("QE_RISK_DAILY_LOSS_WARNING_RATIO", c.Risk.DailyLossWarningRatio)
	c.Risk.DrawdownWarningRatio = getEnvFloat("QE_RISK_DRAWDOWN_WARNING_RATIO", c.Risk.DrawdownWarningRatio)

	c.Global.Timezone = getEnv("QE_GLOBAL_TIMEZONE", c.Global.Timezone)
	c.Global.LogLevel = getEnv("QE_GLOBAL_LOG_LEVEL", c.Global.LogLevel)
	c.Global.Debug = getEnvBool("QE_GLOBAL_DEBUG", c.Global.Debug)
}

// mergeNonZero copies non-zero-value fields from o into c, field by field,
// so explicit caller arguments win over env/yaml/defaults without requiring
// the caller to populate every field of Config. Only these fields are
// merged: DataCenter.BaseURL, CacheTTLSeconds, MaxRetries, CacheMaxEntries;
// Trading.DefaultLeverage, DefaultPositionSizePct, TakerFee, Slippage,
// MaintenanceMarginRatio; Engine.BatchSize, MaxSpeed, DefaultIndicators;
// Risk.MaxDailyLossPct, MaxDrawdownPct. Every other field of o is ignored.
func mergeNonZero(c *Config, o *Config) {
	if o.DataCenter.BaseURL != "" {
		c.DataCenter.BaseURL = o.DataCenter.BaseURL
	}
	if o.DataCenter.CacheTTLSeconds != 0 {
		c.DataCenter.CacheTTLSeconds = o.DataCenter.CacheTTLSeconds
	}
	if o.DataCenter.MaxRetries != 0 {
		c.DataCenter.MaxRetries = o.DataCenter.MaxRetries
	}
	if o.DataCenter.CacheMaxEntries != 0 {
		c.DataCenter.CacheMaxEntries = o.DataCenter.CacheMaxEntries
	}
	if o.Trading.DefaultLeverage != 0 {
		c.Trading.DefaultLeverage = o.Trading.DefaultLeverage
	}
	if o.Trading.DefaultPositionSizePct != 0 {
		c.Trading.DefaultPositionSizePct = o.Trading.DefaultPositionSizePct
	}
	if o.Trading.TakerFee != 0 {
		c.Trading.TakerFee = o.Trading.TakerFee
	}
	if o.Trading.Slippage != 0 {
		c.Trading.Slippage = o.Trading.Slippage
	}
	if o.Trading.MaintenanceMarginRatio != 0 {
		c.Trading.MaintenanceMarginRatio = o.Trading.MaintenanceMarginRatio
	}
	if o.Engine.BatchSize != 0 {
		c.Engine.BatchSize = o.Engine.BatchSize
	}
	if o.Engine.MaxSpeed != 0 {
		c.Engine.MaxSpeed = o.Engine.MaxSpeed
	}
	if len(o.Engine.DefaultIndicators) > 0 {
		c.Engine.DefaultIndicators = o.Engine.DefaultIndicators
	}
	if o.Risk.MaxDailyLossPct != 0 {
		c.Risk.MaxDailyLossPct = o.Risk.MaxDailyLossPct
	}
	if o.Risk.MaxDrawdownPct != 0 {
		c.Risk.MaxDrawdownPct = o.Risk.MaxDrawdownPct
	}
}

// --------- env helpers (adapted from the teacher's env.go) ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
