package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/margin/journal"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents a complete simulation run.
type Config struct {
	Account AccountConfig `json:"account" yaml:"account" mapstructure:"account"`
	Engine  EngineConfig  `json:"engine" yaml:"engine" mapstructure:"engine"`
	Feed    FeedConfig    `json:"feed" yaml:"feed" mapstructure:"feed"`
	Journal JournalConfig `json:"journal" yaml:"journal" mapstructure:"journal"`
	Log     LogConfig     `json:"log" yaml:"log" mapstructure:"log"`
	Orders  []OrderConfig `json:"orders,omitempty" yaml:"orders,omitempty" mapstructure:"orders"`
}

type AccountConfig struct {
	ID       string          `json:"id" yaml:"id" mapstructure:"id"`
	Currency string          `json:"currency" yaml:"currency" mapstructure:"currency"`
	Balance  decimal.Decimal `json:"balance" yaml:"balance" mapstructure:"balance"`
}

// EngineConfig tunes fills and the optional position triggers.
type EngineConfig struct {
	Slippage     decimal.Decimal `json:"slippage" yaml:"slippage" mapstructure:"slippage"`
	Triggers     bool            `json:"triggers" yaml:"triggers" mapstructure:"triggers"`
	StopOutLevel decimal.Decimal `json:"stop_out_level" yaml:"stop_out_level" mapstructure:"stop_out_level"`
}

// FeedConfig drives the random-walk price feed.
type FeedConfig struct {
	Instrument string          `json:"instrument" yaml:"instrument" mapstructure:"instrument"`
	StartPrice decimal.Decimal `json:"start_price,omitempty" yaml:"start_price,omitempty" mapstructure:"start_price"`
	Interval   time.Duration   `json:"interval" yaml:"interval" mapstructure:"interval"`
	MaxStep    float64         `json:"max_step" yaml:"max_step" mapstructure:"max_step"`
	Seed       int64           `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
}

type JournalConfig struct {
	Type       string `json:"type" yaml:"type" mapstructure:"type"` // csv, sqlite, jsonl, none
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty" mapstructure:"trades_file"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty" mapstructure:"equity_file"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty" mapstructure:"db_path"`
	JSONLPath  string `json:"jsonl_path,omitempty" yaml:"jsonl_path,omitempty" mapstructure:"jsonl_path"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json or console
}

// OrderConfig is an order the run command places After the feed starts.
type OrderConfig struct {
	After       time.Duration    `json:"after" yaml:"after" mapstructure:"after"`
	Instrument  string           `json:"instrument" yaml:"instrument" mapstructure:"instrument"`
	Side        string           `json:"side" yaml:"side" mapstructure:"side"`
	Type        string           `json:"type" yaml:"type" mapstructure:"type"`
	Size        decimal.Decimal  `json:"size" yaml:"size" mapstructure:"size"`
	Leverage    int              `json:"leverage" yaml:"leverage" mapstructure:"leverage"`
	TimeInForce string           `json:"time_in_force,omitempty" yaml:"time_in_force,omitempty" mapstructure:"time_in_force"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty" yaml:"limit_price,omitempty" mapstructure:"limit_price"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty" yaml:"stop_price,omitempty" mapstructure:"stop_price"`
	TakeProfit  *decimal.Decimal `json:"take_profit,omitempty" yaml:"take_profit,omitempty" mapstructure:"take_profit"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty" mapstructure:"stop_loss"`
}

// Request converts the scripted order into an order request.
func (o OrderConfig) Request() order.Request {
	return order.Request{
		Instrument:  o.Instrument,
		Side:        market.Side(o.Side),
		Type:        order.Type(o.Type),
		Size:        o.Size,
		Leverage:    o.Leverage,
		TimeInForce: order.TimeInForce(o.TimeInForce),
		LimitPrice:  o.LimitPrice,
		StopPrice:   o.StopPrice,
		TakeProfit:  o.TakeProfit,
		StopLoss:    o.StopLoss,
	}
}

// JournalOptions maps the journal section onto journal.Open.
func (c *Config) JournalOptions() journal.Options {
	return journal.Options{
		Type:       c.Journal.Type,
		TradesFile: c.Journal.TradesFile,
		EquityFile: c.Journal.EquityFile,
		DBPath:     c.Journal.DBPath,
		JSONLPath:  c.Journal.JSONLPath,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if !c.Account.Balance.IsPositive() {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Engine.Slippage.IsNegative() || c.Engine.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("engine.slippage must be in [0, 1)")
	}
	if c.Engine.StopOutLevel.IsNegative() {
		return fmt.Errorf("engine.stop_out_level must not be negative")
	}

	if _, err := market.Lookup(c.Feed.Instrument); err != nil {
		return err
	}
	if c.Feed.StartPrice.IsNegative() {
		return fmt.Errorf("feed.start_price must not be negative")
	}
	if c.Feed.Interval <= 0 {
		return fmt.Errorf("feed.interval must be positive")
	}
	if c.Feed.MaxStep <= 0 || c.Feed.MaxStep >= 1 {
		return fmt.Errorf("feed.max_step must be in (0, 1)")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "jsonl":
		if c.Journal.JSONLPath == "" {
			return fmt.Errorf("journal jsonl_path required for JSONL type")
		}
	default:
		return fmt.Errorf("journal.type must be one of csv, sqlite, jsonl, none")
	}

	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}

	for i, o := range c.Orders {
		if o.After < 0 {
			return fmt.Errorf("orders[%d].after must not be negative", i)
		}
		if o.Instrument == "" {
			return fmt.Errorf("orders[%d].instrument is required", i)
		}
	}
	return nil
}

// StartPrice is the configured feed start, or the instrument's reference
// price when unset.
func (c *Config) StartPrice() decimal.Decimal {
	if c.Feed.StartPrice.IsPositive() {
		return c.Feed.StartPrice
	}
	inst, _ := market.Lookup(c.Feed.Instrument)
	return inst.Price
}

func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:       "SIM-001",
			Currency: "USD",
			Balance:  decimal.NewFromInt(10000),
		},
		Engine: EngineConfig{
			Slippage: decimal.RequireFromString("0.0005"),
		},
		Feed: FeedConfig{
			Instrument: "BTC_USD",
			Interval:   time.Second,
			MaxStep:    0.001,
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
