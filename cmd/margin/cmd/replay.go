package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/margin/feed"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Open a position and replay a fixed price path against it",
	Long: `Replay opens one market order at the instrument's reference price,
then feeds a fixed price path through the engine and prints a snapshot
after each tick. The path is either a comma separated list or a CSV tick
file with time,instrument,price (or time,instrument,bid,ask) rows.

Examples:
  margin replay --prices 45100,45300,44900,45500 --side buy --size 0.2 --leverage 10
  margin replay --file ticks.csv --side sell`,
	RunE: runReplay,
}

var (
	replayPrices   string
	replayFile     string
	replaySide     string
	replaySize     string
	replayLeverage int
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayPrices, "prices", "p", "", "comma separated prices")
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "CSV tick file")
	replayCmd.Flags().StringVar(&replaySide, "side", "buy", "order side (buy or sell)")
	replayCmd.Flags().StringVar(&replaySize, "size", "0.1", "order size")
	replayCmd.Flags().IntVar(&replayLeverage, "leverage", 10, "leverage tier")
	replayCmd.MarkFlagsOneRequired("prices", "file")
	replayCmd.MarkFlagsMutuallyExclusive("prices", "file")
}

func parsePrices(s string) ([]decimal.Decimal, error) {
	var prices []decimal.Decimal
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := decimal.NewFromString(f)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", f, err)
		}
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no prices given")
	}
	return prices, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	size, err := decimal.NewFromString(replaySize)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var src feed.Feed
	if replayFile != "" {
		cf := feed.NewCSVFile(replayFile, cfg.Feed.Instrument)
		cf.Log = a.log
		src = cf
	} else {
		prices, err := parsePrices(replayPrices)
		if err != nil {
			return err
		}
		src = feed.NewReplay(cfg.Feed.Instrument, prices...)
	}

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pl, err := a.engine.PlaceOrder(ctx, order.Request{
		Instrument: cfg.Feed.Instrument,
		Side:       market.Side(replaySide),
		Type:       order.TypeMarket,
		Size:       size,
		Leverage:   replayLeverage,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Opened %s %s %s at %s, margin %s\n",
		pl.Position.Direction, pl.Position.Size, pl.Position.Instrument,
		pl.Fill.FillPrice.StringFixed(2), pl.Position.MarginHeld.StringFixed(2))

	a.engine.AddListener(&printer{out: out})
	if err := a.engine.Run(ctx, src); err != nil {
		return err
	}

	printPositions(out, a.engine.Positions())
	res, err := a.engine.CloseAll(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nClosed %d positions, realized %s\n", len(res.Closed), res.PnL.StringFixed(2))
	printAccount(out, a.engine.Account())
	return nil
}
