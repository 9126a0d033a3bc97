package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.True(t, decimal.NewFromInt(10000).Equal(cfg.Account.Balance))
	assert.Equal(t, "BTC_USD", cfg.Feed.Instrument)
	assert.Equal(t, time.Second, cfg.Feed.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing currency", func(c *Config) { c.Account.Currency = "" }, "account.currency is required"},
		{"negative balance", func(c *Config) { c.Account.Balance = decimal.NewFromInt(-1000) }, "account.balance must be positive"},
		{"slippage too large", func(c *Config) { c.Engine.Slippage = decimal.NewFromInt(1) }, "engine.slippage"},
		{"negative stop out", func(c *Config) { c.Engine.StopOutLevel = decimal.NewFromInt(-1) }, "engine.stop_out_level"},
		{"unknown instrument", func(c *Config) { c.Feed.Instrument = "DOGE_USD" }, "unknown instrument"},
		{"zero interval", func(c *Config) { c.Feed.Interval = 0 }, "feed.interval"},
		{"bad max step", func(c *Config) { c.Feed.MaxStep = 1.5 }, "feed.max_step"},
		{"csv without files", func(c *Config) { c.Journal.Type = "csv" }, "trades_file and equity_file"},
		{"sqlite without path", func(c *Config) { c.Journal.Type = "sqlite" }, "db_path"},
		{"jsonl without path", func(c *Config) { c.Journal.Type = "jsonl" }, "jsonl_path"},
		{"unknown journal", func(c *Config) { c.Journal.Type = "parquet" }, "journal.type"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"order without instrument", func(c *Config) { c.Orders = []OrderConfig{{Side: "buy"}} }, "orders[0].instrument"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	limit := decimal.NewFromInt(44000)
	cfg := Default()
	cfg.Engine.Triggers = true
	cfg.Journal = JournalConfig{Type: "sqlite", DBPath: "margin.db"}
	cfg.Orders = []OrderConfig{
		{After: 2 * time.Second, Instrument: "BTC_USD", Side: "buy", Type: "market", Size: decimal.RequireFromString("0.2"), Leverage: 10},
		{Instrument: "BTC_USD", Side: "sell", Type: "limit", Size: decimal.RequireFromString("0.1"), Leverage: 5, LimitPrice: &limit},
	}

	for _, name := range []string{"config.yaml", "config.json"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.True(t, cfg.Account.Balance.Equal(got.Account.Balance))
			assert.True(t, got.Engine.Triggers)
			assert.Equal(t, "sqlite", got.Journal.Type)
			require.Len(t, got.Orders, 2)
			assert.Equal(t, 2*time.Second, got.Orders[0].After)
			assert.True(t, decimal.RequireFromString("0.2").Equal(got.Orders[0].Size))
			require.NotNil(t, got.Orders[1].LimitPrice)
			assert.True(t, limit.Equal(*got.Orders[1].LimitPrice))
		})
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.yaml")
	doc := `
account:
  currency: USD
  balance: "2500.50"
feed:
  instrument: ETH_USD
  interval: 250ms
  max_step: 0.002
orders:
  - instrument: ETH_USD
    side: sell
    type: market
    size: "1.5"
    leverage: 20
    stop_loss: "2600"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2500.50").Equal(cfg.Account.Balance))
	assert.Equal(t, 250*time.Millisecond, cfg.Feed.Interval)
	assert.Equal(t, "console", cfg.Log.Format, "unset sections keep defaults")
	assert.True(t, decimal.NewFromInt(2500).Equal(cfg.StartPrice()))

	req := cfg.Orders[0].Request()
	assert.Equal(t, market.SideSell, req.Side)
	assert.Equal(t, order.TypeMarket, req.Type)
	assert.Equal(t, 20, req.Leverage)
	require.NotNil(t, req.StopLoss)
	assert.True(t, decimal.NewFromInt(2600).Equal(*req.StopLoss))
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestJournalOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Journal = JournalConfig{Type: "csv", TradesFile: "t.csv", EquityFile: "e.csv"}
	opts := cfg.JournalOptions()
	assert.Equal(t, "csv", opts.Type)
	assert.Equal(t, "t.csv", opts.TradesFile)
	assert.Equal(t, "e.csv", opts.EquityFile)
}
