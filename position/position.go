package position

import (
	"time"

	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position is an open leveraged position. Size, Leverage, EntryPrice and
// MarginHeld are fixed at open; CurrentPrice and the P&L fields follow the
// ticks; StopLoss and TakeProfit change only through Modify.
type Position struct {
	ID         string
	OrderID    string
	Instrument string
	Direction  market.Direction
	Size       decimal.Decimal
	Leverage   int
	EntryPrice decimal.Decimal
	MarginHeld decimal.Decimal
	OpenedAt   time.Time

	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal

	CurrentPrice         decimal.Decimal
	UnrealizedPnL        decimal.Decimal
	UnrealizedPnLPercent decimal.Decimal
	MarkedAt             time.Time
}

// PnL is the mark-to-market result of holding p at price.
func (p Position) PnL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Direction == market.Short {
		diff = diff.Neg()
	}
	return diff.Mul(p.Size)
}

// PnLPercent expresses pnl relative to the margin held.
func (p Position) PnLPercent(pnl decimal.Decimal) decimal.Decimal {
	if p.MarginHeld.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(p.MarginHeld).Mul(hundred)
}

// Settlement is what closing p returns to the account: margin plus P&L.
func (p Position) Settlement() decimal.Decimal {
	return p.MarginHeld.Add(p.UnrealizedPnL)
}

// mark sets the current price and the derived fields.
func (p *Position) mark(price decimal.Decimal, at time.Time) {
	p.CurrentPrice = price
	p.UnrealizedPnL = p.PnL(price)
	p.UnrealizedPnLPercent = p.PnLPercent(p.UnrealizedPnL)
	p.MarkedAt = at
}

func (p Position) clone() Position {
	p.StopLoss = copyPtr(p.StopLoss)
	p.TakeProfit = copyPtr(p.TakeProfit)
	return p
}

func copyPtr(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// HitStopLoss reports whether price crosses the stop for p's direction.
func (p Position) HitStopLoss(price decimal.Decimal) bool {
	if p.StopLoss == nil {
		return false
	}
	if p.Direction == market.Long {
		return price.LessThanOrEqual(*p.StopLoss)
	}
	return price.GreaterThanOrEqual(*p.StopLoss)
}

// HitTakeProfit reports whether price reaches the target for p's direction.
func (p Position) HitTakeProfit(price decimal.Decimal) bool {
	if p.TakeProfit == nil {
		return false
	}
	if p.Direction == market.Long {
		return price.GreaterThanOrEqual(*p.TakeProfit)
	}
	return price.LessThanOrEqual(*p.TakeProfit)
}
