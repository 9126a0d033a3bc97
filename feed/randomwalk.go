package feed

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

const (
	DefaultInterval  = time.Second
	DefaultMaxStep   = 0.001
	DefaultPrecision = 8
)

// RandomWalk perturbs the previous price by a uniform relative step in
// [-MaxStep, +MaxStep] every Interval.
type RandomWalk struct {
	Instrument string
	Start      decimal.Decimal
	Interval   time.Duration
	MaxStep    float64
	Precision  int32
	Clock      clock.Clock
	Rand       *rand.Rand

	mu sync.Mutex // guards Rand, which is not safe for concurrent use
}

func NewRandomWalk(instrument string, start decimal.Decimal) *RandomWalk {
	return &RandomWalk{
		Instrument: instrument,
		Start:      start,
		Interval:   DefaultInterval,
		MaxStep:    DefaultMaxStep,
		Precision:  DefaultPrecision,
		Clock:      clock.New(),
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *RandomWalk) validate() error {
	if w.Instrument == "" {
		return errors.New("random walk: instrument required")
	}
	if !w.Start.IsPositive() {
		return errors.New("random walk: start price must be positive")
	}
	if w.Interval <= 0 {
		return errors.New("random walk: interval must be positive")
	}
	if w.MaxStep <= 0 || w.MaxStep >= 1 {
		return errors.New("random walk: max step must be in (0, 1)")
	}
	return nil
}

// Next applies one step to price.
func (w *RandomWalk) Next(price decimal.Decimal) decimal.Decimal {
	w.mu.Lock()
	r := w.Rand.Float64()
	w.mu.Unlock()

	delta := (2*r - 1) * w.MaxStep
	next := price.Mul(decimal.NewFromFloat(1 + delta))
	if w.Precision > 0 {
		next = next.Round(w.Precision)
	}
	if !next.IsPositive() {
		return price
	}
	return next
}

func (w *RandomWalk) Subscribe(ctx context.Context) (<-chan market.Tick, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	if w.Clock == nil {
		w.Clock = clock.New()
	}
	if w.Rand == nil {
		w.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// The ticker is created before returning so a mock clock advanced by
	// the caller right after Subscribe still fires it.
	ticker := w.Clock.Ticker(w.Interval)
	out := make(chan market.Tick)

	go func() {
		defer close(out)
		defer ticker.Stop()

		price := w.Start
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				price = w.Next(price)
				seq++
				t := market.Tick{
					Instrument: w.Instrument,
					Price:      price,
					Time:       now.UTC(),
					Seq:        seq,
				}
				if !send(ctx, out, t) {
					return
				}
			}
		}
	}()
	return out, nil
}
