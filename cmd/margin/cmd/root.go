package cmd

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/margin/config"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "margin",
	Short: "A leveraged margin account simulator",
	Long: `Margin simulates a single leveraged trading account.

Orders are validated against the free balance and leverage tiers, market
orders fill immediately with slippage, and open positions are marked to a
simulated price feed.

Settings come from a YAML or JSON config file, then MARGIN_* environment
variables (a .env file is loaded first), then command line flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine.
		_ = godotenv.Load(envFile)
		return nil
	},
}

var (
	cfgFile string
	envFile string
	v       = viper.New()

	replacer = strings.NewReplacer(".", "_")
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading MARGIN_* variables")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (console or json)")
	pf.String("journal", "", "journal type (csv, sqlite, jsonl, none)")
	pf.String("balance", "", "starting account balance")

	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = v.BindPFlag("journal.type", pf.Lookup("journal"))
	_ = v.BindPFlag("account.balance", pf.Lookup("balance"))

	v.SetEnvPrefix("MARGIN")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()
}

// loadConfig reads the config file, or the defaults without one, and
// layers environment and flag overrides on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := applyOverrides(v, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyOverrides(v *viper.Viper, cfg *config.Config) error {
	str := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	dec := func(key string, dst *decimal.Decimal) error {
		if !v.IsSet(key) || v.GetString(key) == "" {
			return nil
		}
		d, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("account.id", &cfg.Account.ID)
	str("account.currency", &cfg.Account.Currency)
	str("feed.instrument", &cfg.Feed.Instrument)
	str("journal.type", &cfg.Journal.Type)
	str("journal.trades_file", &cfg.Journal.TradesFile)
	str("journal.equity_file", &cfg.Journal.EquityFile)
	str("journal.db_path", &cfg.Journal.DBPath)
	str("journal.jsonl_path", &cfg.Journal.JSONLPath)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)

	for key, dst := range map[string]*decimal.Decimal{
		"account.balance":       &cfg.Account.Balance,
		"engine.slippage":       &cfg.Engine.Slippage,
		"engine.stop_out_level": &cfg.Engine.StopOutLevel,
		"feed.start_price":      &cfg.Feed.StartPrice,
	} {
		if err := dec(key, dst); err != nil {
			return err
		}
	}

	if v.IsSet("engine.triggers") {
		cfg.Engine.Triggers = v.GetBool("engine.triggers")
	}
	if v.IsSet("feed.interval") {
		cfg.Feed.Interval = v.GetDuration("feed.interval")
	}
	if v.IsSet("feed.max_step") {
		cfg.Feed.MaxStep = v.GetFloat64("feed.max_step")
	}
	if v.IsSet("feed.seed") {
		cfg.Feed.Seed = v.GetInt64("feed.seed")
	}
	return nil
}
