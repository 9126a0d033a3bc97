package cmd

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rustyeddy/margin/config"
	"github.com/rustyeddy/margin/feed"
	"github.com/rustyeddy/margin/order"
	"github.com/rustyeddy/margin/sim"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a live simulation against a random-walk feed",
	Long: `Run seeds the account, starts a random-walk price feed for the
configured instrument and places the orders listed under "orders:" in the
config as their start offsets elapse. Snapshots are printed on every
change. When the run ends all open positions are closed.

Example:
  margin run --config margin.yaml --duration 30s`,
	RunE: runRun,
}

var runDuration time.Duration

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	a.engine.AddListener(&printer{out: out})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	clk := clock.New()
	walk := feed.NewRandomWalk(cfg.Feed.Instrument, cfg.StartPrice())
	walk.Interval = cfg.Feed.Interval
	walk.MaxStep = cfg.Feed.MaxStep
	walk.Clock = clk
	if cfg.Feed.Seed != 0 {
		walk.Rand = rand.New(rand.NewSource(cfg.Feed.Seed))
	}

	fmt.Fprintf(out, "Running %s from %s every %s\n", cfg.Feed.Instrument, cfg.StartPrice(), cfg.Feed.Interval)
	printAccount(out, a.engine.Account())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(gctx, walk)
	})
	g.Go(func() error {
		return placeScripted(gctx, a, clk, cfg.Orders)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	res, err := a.engine.CloseAll(context.Background())
	if err != nil {
		return fmt.Errorf("close all: %w", err)
	}
	fmt.Fprintf(out, "\nClosed %d positions, realized %s\n", len(res.Closed), res.PnL.StringFixed(2))
	printAccount(out, a.engine.Account())
	return nil
}

// placeScripted places each configured order once its After offset has
// elapsed. Rejections are reported and do not stop the run.
func placeScripted(ctx context.Context, a *app, clk clock.Clock, orders []config.OrderConfig) error {
	scripted := slices.Clone(orders)
	slices.SortStableFunc(scripted, func(x, y config.OrderConfig) int {
		return cmp.Compare(x.After, y.After)
	})

	start := clk.Now()
	for _, oc := range scripted {
		wait := oc.After - clk.Since(start)
		if wait > 0 {
			timer := clk.Timer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}

		pl, err := a.engine.PlaceOrder(ctx, oc.Request())
		var ve *order.ValidationError
		switch {
		case errors.As(err, &ve):
			a.log.Warn("scripted order rejected", zap.String("code", ve.Code()))
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return fmt.Errorf("place order: %w", err)
		case pl.Status == sim.StatusPending:
			a.log.Info("scripted order pending", zap.String("order_id", pl.OrderID))
		}
	}
	return nil
}
