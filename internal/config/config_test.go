package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("", "", nil)
	require.Equal(t, 300, cfg.DataCenter.CacheTTLSeconds)
	require.Equal(t, 0.1, cfg.Trading.DefaultPositionSizePct)
	require.Equal(t, 5.0, cfg.Risk.MaxDailyLossPct)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	os.Setenv("QE_TRADING_TAKER_FEE", "0.001")
	defer os.Unsetenv("QE_TRADING_TAKER_FEE")

	cfg := Load("", "", nil)
	require.Equal(t, 0.001, cfg.Trading.TakerFee)
}

func TestLoadOverridesWinOverEnv(t *testing.T) {
	os.Setenv("QE_RISK_MAX_DRAWDOWN_PCT", "20")
	defer os.Unsetenv("QE_RISK_MAX_DRAWDOWN_PCT")

	over := &Config{Risk: Risk{MaxDrawdownPct: 12.5}}
	cfg := Load("", "", over)
	require.Equal(t, 12.5, cfg.Risk.MaxDrawdownPct)
}
