// Package feed produces price ticks. A Feed is the only thing the engine
// needs from a price source, so the random walk used for simulation can
// be swapped for a live source without touching the ledgers.
package feed

import (
	"context"

	"github.com/rustyeddy/margin/market"
)

// Feed delivers ticks in strictly increasing time order, one at a time.
// The returned channel is closed when ctx is cancelled or the source is
// exhausted.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan market.Tick, error)
}

// send delivers t unless ctx is done first.
func send(ctx context.Context, out chan<- market.Tick, t market.Tick) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- t:
		return true
	case <-ctx.Done():
		return false
	}
}
