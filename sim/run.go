package sim

import (
	"context"

	"github.com/rustyeddy/margin/feed"
	"go.uber.org/zap"
)

// Run subscribes to f and applies every tick until ctx is cancelled or
// the feed ends. Cancelling stops tick delivery only; ledger state is left
// as the last applied tick made it.
func (e *Engine) Run(ctx context.Context, f feed.Feed) error {
	ticks, err := f.Subscribe(ctx)
	if err != nil {
		return err
	}
	e.log.Info("feed started")

	var applied int
	for {
		select {
		case <-ctx.Done():
			e.log.Info("feed stopped", zap.Int("ticks", applied), zap.Error(ctx.Err()))
			return nil
		case t, ok := <-ticks:
			if !ok {
				e.log.Info("feed closed", zap.Int("ticks", applied))
				return nil
			}
			applied++
			if err := e.UpdatePrice(t); err != nil {
				e.log.Warn("tick rejected", zap.String("instrument", t.Instrument), zap.Error(err))
			}
		}
	}
}
