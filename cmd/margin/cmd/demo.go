package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/margin/account"
	"github.com/rustyeddy/margin/journal"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/rustyeddy/margin/pkg/logging"
	"github.com/rustyeddy/margin/sim"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Walk through one leveraged trade",
	Long: `Demo opens a 0.2 BTC long at 10x on a $10,000 account, shows the
margin debit and the fill with slippage, moves the price to 45,500,
shows an order rejected for insufficient balance, then closes the
position and prints the realized result.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	log, err := logging.New("warn", "console")
	if err != nil {
		return err
	}
	defer log.Sync()

	j := &journal.Memory{}
	engine := sim.NewEngine(account.New("DEMO-001", "USD", decimal.NewFromInt(10000)), sim.Config{
		Journal: j,
		Logger:  log,
	})
	btc, err := market.Lookup("BTC_USD")
	if err != nil {
		return err
	}
	engine.SetInstrument(btc)

	fmt.Fprintln(out, "=== Margin Demo ===")
	fmt.Fprintln(out)
	printAccount(out, engine.Account())

	fmt.Fprintf(out, "\nBuy 0.2 BTC_USD at 10x with BTC at %s\n", btc.Price)
	pl, err := engine.PlaceOrder(ctx, order.Request{
		Instrument: "BTC_USD",
		Side:       market.SideBuy,
		Type:       order.TypeMarket,
		Size:       decimal.RequireFromString("0.2"),
		Leverage:   10,
	})
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	fmt.Fprintf(out, "  Required margin: %s\n", pl.Order.RequiredMargin.StringFixed(2))
	fmt.Fprintf(out, "  Filled at:       %s (slippage %s)\n", pl.Fill.FillPrice.StringFixed(2), pl.Fill.Slippage().StringFixed(2))
	printAccount(out, engine.Account())

	fmt.Fprintln(out, "\nBTC moves to 45500")
	if err := engine.UpdatePrice(market.Tick{
		Instrument: "BTC_USD",
		Price:      decimal.NewFromInt(45500),
		Time:       time.Now().UTC(),
	}); err != nil {
		return err
	}
	printPositions(out, engine.Positions())

	fmt.Fprintln(out, "\nBuy 5 BTC_USD at 10x (more than the free balance covers)")
	_, err = engine.PlaceOrder(ctx, order.Request{
		Instrument: "BTC_USD",
		Side:       market.SideBuy,
		Type:       order.TypeMarket,
		Size:       decimal.NewFromInt(5),
		Leverage:   10,
	})
	var ve *order.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("expected a rejection, got %v", err)
	}
	fmt.Fprintf(out, "  Rejected: %s\n", ve.Code())

	fmt.Fprintln(out, "\nClose the position")
	closed, err := engine.ClosePosition(ctx, pl.Position.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  Realized P&L: %s\n", closed.UnrealizedPnL.StringFixed(2))
	printAccount(out, engine.Account())

	fmt.Fprintf(out, "\nJournal: %d trade(s), %d equity snapshot(s)\n", len(j.Trades), len(j.Equity))
	return nil
}
