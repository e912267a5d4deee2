package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigParsesDecimalString(t *testing.T) {
	path := writeConfigFile(t, `
env: development
log:
  show_caller: false
  log_level: info
graceful_shutdown_timeout: 10s
strategy:
  donchian:
    tickers:
      - SBER
    size_portfolio: "1000000"
    poll_interval: 4s
    channel_refresh_interval: 1m
    candle_interval: 1min
`)

	require.NoError(t, LoadConfig(path))

	donchian := Env.Strategy.Donchian
	assert.True(t, donchian.SizePortfolio.Equal(decimal.NewFromInt(1_000_000)), "got %s", donchian.SizePortfolio)
	assert.Equal(t, []string{"SBER"}, donchian.Tickers)
	assert.Equal(t, 4*time.Second, donchian.PollInterval)
	assert.Equal(t, time.Minute, donchian.ChannelRefreshInterval)
	assert.Equal(t, 10*time.Second, Env.GracefulShutdownTimeout)
}

func TestLoadConfigParsesDecimalNumber(t *testing.T) {
	path := writeConfigFile(t, `
env: development
log:
  show_caller: false
  log_level: info
strategy:
  donchian:
    size_portfolio: 250000.5
`)

	require.NoError(t, LoadConfig(path))
	assert.True(t, Env.Strategy.Donchian.SizePortfolio.Equal(decimal.RequireFromString("250000.5")),
		"got %s", Env.Strategy.Donchian.SizePortfolio)
}

func TestLoadConfigRejectsMalformedDecimal(t *testing.T) {
	path := writeConfigFile(t, `
env: development
strategy:
  donchian:
    size_portfolio: "a lot"
`)

	require.Error(t, LoadConfig(path))
}

func TestLoadConfigMissingFile(t *testing.T) {
	require.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yml")))
}
