package feed

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

// Replay emits a fixed list of prices, stamped Start, Start+Step, ...,
// then closes the channel.
type Replay struct {
	Instrument string
	Prices     []decimal.Decimal
	Start      time.Time
	Step       time.Duration
}

func NewReplay(instrument string, prices ...decimal.Decimal) *Replay {
	return &Replay{
		Instrument: instrument,
		Prices:     prices,
		Start:      time.Now().UTC(),
		Step:       time.Second,
	}
}

func (r *Replay) Subscribe(ctx context.Context) (<-chan market.Tick, error) {
	if r.Instrument == "" {
		return nil, errors.New("replay: instrument required")
	}
	for _, p := range r.Prices {
		if !p.IsPositive() {
			return nil, errors.New("replay: prices must be positive")
		}
	}
	step := r.Step
	if step <= 0 {
		step = time.Nanosecond
	}

	out := make(chan market.Tick)
	go func() {
		defer close(out)
		for i, p := range r.Prices {
			t := market.Tick{
				Instrument: r.Instrument,
				Price:      p,
				Time:       r.Start.Add(time.Duration(i) * step),
				Seq:        uint64(i + 1),
			}
			if !send(ctx, out, t) {
				return
			}
		}
	}()
	return out, nil
}
