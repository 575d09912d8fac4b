package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "xtrade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "demo", cfg.Xapi.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Xapi.PingInterval)
	assert.Equal(t, []string{"EURUSD"}, cfg.Strategy.Symbols)
	assert.Equal(t, 2000, cfg.Backtest.PageSize)
	assert.True(t, cfg.Backtest.From.IsZero())
	assert.Equal(t, 5432, cfg.Journal.Postgres.Port)
	assert.Len(t, cfg.Xapi.ServerList(), 3)
	assert.Contains(t, cfg.Monitor, "positions_closed")
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
xapi:
  mode: real
  transport: websocket
  user_id: "12345"
  command_interval: 250ms
strategy:
  symbols: [EURUSD, GBPUSD]
backtest:
  source: duckdb
  path: candles.duckdb
  from: "2024-01-01"
  to: "2024-02-01T00:00:00Z"
  seed: 42
journal:
  driver: postgres
  postgres:
    host: db.internal
`)
	t.Setenv("XTRADE_XAPI_PASSWORD", "secret")
	t.Setenv("XTRADE_BACKTEST_SEED", "7")
	t.Setenv("XTRADE_NOTIFY_TELEGRAM_CHAT_ID", "-100200")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "websocket", cfg.Xapi.Transport)
	assert.Equal(t, 250*time.Millisecond, cfg.Xapi.CommandInterval)
	assert.Equal(t, "12345", cfg.Xapi.Credentials().UserId)
	assert.Equal(t, "secret", cfg.Xapi.Credentials().Password)
	assert.Equal(t, "real-0", cfg.Xapi.ServerList()[0].Name)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Strategy.Symbols)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.From)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), cfg.Backtest.To)
	assert.Equal(t, int64(7), cfg.Backtest.Seed)
	assert.Equal(t, "db.internal", cfg.Journal.Postgres.Host)
	assert.Equal(t, int64(-100200), cfg.Notify.TelegramChatId)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "mode", content: "xapi:\n  mode: paper\n", want: "xapi.mode"},
		{name: "timeframe", content: "backtest:\n  timeframe: 2h\n", want: "backtest.timeframe"},
		{name: "range", content: "backtest:\n  from: \"2024-02-01\"\n  to: \"2024-01-01\"\n", want: "backtest.from"},
		{name: "spread", content: "backtest:\n  min_spread: 10\n  max_spread: 5\n", want: "backtest.min_spread"},
		{name: "journal", content: "journal:\n  driver: mongo\n", want: "journal.driver"},
		{name: "source", content: "backtest:\n  source: parquet\n", want: "backtest.source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBacktest_Parameters(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	params, err := cfg.Backtest.Parameters()
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", params.Symbol)
	assert.Equal(t, "10000", params.StartBalance.String())
	assert.Equal(t, int64(1), params.Seed)

	info := cfg.Backtest.Symbol.Info()
	assert.True(t, info.IsForex())
	assert.Equal(t, "0.00001", info.TickSize.String())
}
