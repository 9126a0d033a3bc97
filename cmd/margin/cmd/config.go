package cmd

import (
	"fmt"

	"github.com/rustyeddy/margin/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a default configuration file",
	Long: `Write the default configuration. The format follows the extension:
.yaml and .yml give YAML, anything else JSON.

Example:
  margin config init margin.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().SaveToFile(args[0]); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created default configuration: %s\n", args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "Run it with:\n  margin run --config %s\n", args[0])
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(args[0])
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Configuration valid: %s\n", args[0])
		fmt.Fprintf(out, "  Account: %s (%s %s)\n", cfg.Account.ID, cfg.Account.Balance.StringFixed(2), cfg.Account.Currency)
		fmt.Fprintf(out, "  Feed:    %s every %s\n", cfg.Feed.Instrument, cfg.Feed.Interval)
		fmt.Fprintf(out, "  Journal: %s\n", cfg.Journal.Type)
		fmt.Fprintf(out, "  Orders:  %d\n", len(cfg.Orders))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
}
