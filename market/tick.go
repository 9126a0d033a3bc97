package market

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNoPrice = errors.New("price not found")

// Tick is a single price observation for one instrument. Seq increases
// strictly within a feed.
type Tick struct {
	Instrument string
	Price      decimal.Decimal
	Time       time.Time
	Seq        uint64
}

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Instrument] = t
}

func (ts *TickStore) Get(instr string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[instr]
	if !ok {
		return Tick{}, ErrNoPrice
	}
	return t, nil
}
