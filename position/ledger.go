// Package position holds the set of open positions for one account and
// recomputes their P&L as ticks arrive.
package position

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

var ErrPositionNotFound = errors.New("position not found")

// Ledger owns the open positions. It is not safe for concurrent use; the
// engine guards it with the same mutex as the account ledger.
type Ledger struct {
	open  map[string]*Position
	order []string // insertion order for stable snapshots
}

func NewLedger() *Ledger {
	return &Ledger{open: make(map[string]*Position)}
}

// Open adds p, marking it at its entry price.
func (l *Ledger) Open(p Position) (Position, error) {
	if p.ID == "" {
		return Position{}, errors.New("open position: empty id")
	}
	if _, dup := l.open[p.ID]; dup {
		return Position{}, fmt.Errorf("open position: duplicate id %s", p.ID)
	}
	p = p.clone()
	p.mark(p.EntryPrice, p.OpenedAt)
	l.open[p.ID] = &p
	l.order = append(l.order, p.ID)
	return p.clone(), nil
}

// Recompute marks every position on the ticked instrument at the tick
// price and returns the ids it touched. Applying the same tick twice
// gives the same result.
func (l *Ledger) Recompute(t market.Tick) []string {
	var touched []string
	for _, id := range l.order {
		p := l.open[id]
		if p.Instrument != t.Instrument {
			continue
		}
		p.mark(t.Price, t.Time)
		touched = append(touched, id)
	}
	return touched
}

// Modify overwrites the stop-loss and take-profit of a position. A nil
// value clears the bound.
func (l *Ledger) Modify(id string, stopLoss, takeProfit *decimal.Decimal) (Position, error) {
	p, ok := l.open[id]
	if !ok {
		return Position{}, fmt.Errorf("modify %s: %w", id, ErrPositionNotFound)
	}
	p.StopLoss = copyPtr(stopLoss)
	p.TakeProfit = copyPtr(takeProfit)
	return p.clone(), nil
}

// Close removes the position and returns it as last marked.
func (l *Ledger) Close(id string) (Position, error) {
	p, ok := l.open[id]
	if !ok {
		return Position{}, fmt.Errorf("close %s: %w", id, ErrPositionNotFound)
	}
	delete(l.open, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return *p, nil
}

// CloseAll removes every position and returns them in open order.
func (l *Ledger) CloseAll() []Position {
	out := make([]Position, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.open[id])
	}
	l.open = make(map[string]*Position)
	l.order = nil
	return out
}

func (l *Ledger) Get(id string) (Position, error) {
	p, ok := l.open[id]
	if !ok {
		return Position{}, fmt.Errorf("get %s: %w", id, ErrPositionNotFound)
	}
	return p.clone(), nil
}

func (l *Ledger) Len() int { return len(l.open) }

// Snapshot returns copies of the open positions in open order.
func (l *Ledger) Snapshot() []Position {
	out := make([]Position, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.open[id].clone())
	}
	return out
}

// Instruments lists the symbols that have open positions.
func (l *Ledger) Instruments() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range l.order {
		sym := l.open[id].Instrument
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func (l *Ledger) MarginUsed() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range l.open {
		sum = sum.Add(p.MarginHeld)
	}
	return sum
}

func (l *Ledger) UnrealizedPnL() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range l.open {
		sum = sum.Add(p.UnrealizedPnL)
	}
	return sum
}
