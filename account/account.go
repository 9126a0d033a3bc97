// Package account tracks the cash side of a single margin account: free
// balance and realized P&L. Margin in use and unrealized P&L are owned by
// the position ledger and passed in by the caller when a derived figure
// needs them.
package account

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is not safe for concurrent use. The engine serializes access
// together with the position ledger.
type Ledger struct {
	id       string
	currency string
	free     decimal.Decimal
	realized decimal.Decimal

	trades, wins, losses int
}

func New(id, currency string, balance decimal.Decimal) *Ledger {
	return &Ledger{id: id, currency: currency, free: balance}
}

func (l *Ledger) ID() string       { return l.id }
func (l *Ledger) Currency() string { return l.currency }

func (l *Ledger) FreeBalance() decimal.Decimal { return l.free }
func (l *Ledger) RealizedPnL() decimal.Decimal { return l.realized }

// Debit removes amount from the free balance. The balance never goes negative.
func (l *Ledger) Debit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit: negative amount %s", amount)
	}
	if amount.GreaterThan(l.free) {
		return fmt.Errorf("debit %s with %s free: %w", amount, l.free, ErrInsufficientFunds)
	}
	l.free = l.free.Sub(amount)
	return nil
}

func (l *Ledger) Credit(amount decimal.Decimal) {
	l.free = l.free.Add(amount)
}

// Settle returns released margin plus realized pnl to the free balance and
// books pnl into the realized accumulator. It counts as one closed trade.
func (l *Ledger) Settle(margin, pnl decimal.Decimal) {
	l.free = l.free.Add(margin).Add(pnl)
	l.realized = l.realized.Add(pnl)
	l.count(pnl)
}

// SettleAll credits several closes in one step: the summed margin plus
// every pnl. Each pnl counts as its own trade.
func (l *Ledger) SettleAll(margin decimal.Decimal, pnls []decimal.Decimal) {
	total := decimal.Zero
	for _, pnl := range pnls {
		total = total.Add(pnl)
		l.count(pnl)
	}
	l.free = l.free.Add(margin).Add(total)
	l.realized = l.realized.Add(total)
}

// A close with positive pnl is a win; anything else is a loss.
func (l *Ledger) count(pnl decimal.Decimal) {
	l.trades++
	if pnl.IsPositive() {
		l.wins++
	} else {
		l.losses++
	}
}

func (l *Ledger) Trades() int { return l.trades }
func (l *Ledger) Wins() int   { return l.wins }
func (l *Ledger) Losses() int { return l.losses }

// Equity is free balance plus margin in use plus open P&L.
func (l *Ledger) Equity(marginUsed, unrealized decimal.Decimal) decimal.Decimal {
	return l.free.Add(marginUsed).Add(unrealized)
}

// FreeMargin is equity minus margin in use.
func (l *Ledger) FreeMargin(marginUsed, unrealized decimal.Decimal) decimal.Decimal {
	return l.Equity(marginUsed, unrealized).Sub(marginUsed)
}

// TotalPnL is open P&L plus everything realized so far.
func (l *Ledger) TotalPnL(unrealized decimal.Decimal) decimal.Decimal {
	return unrealized.Add(l.realized)
}

// MarginLevel is equity / margin used as a percentage, zero with no margin in use.
func (l *Ledger) MarginLevel(marginUsed, unrealized decimal.Decimal) decimal.Decimal {
	if !marginUsed.IsPositive() {
		return decimal.Zero
	}
	return l.Equity(marginUsed, unrealized).Div(marginUsed).Mul(decimal.NewFromInt(100))
}

// Snapshot is a read-only view handed to the validator and display layer.
type Snapshot struct {
	ID          string
	Currency    string
	FreeBalance decimal.Decimal
	MarginUsed  decimal.Decimal
	Unrealized  decimal.Decimal
	Realized    decimal.Decimal
	Equity      decimal.Decimal
	FreeMargin  decimal.Decimal
	MarginLevel decimal.Decimal
	TotalPnL    decimal.Decimal

	Trades int
	Wins   int
	Losses int
}

func (l *Ledger) Snapshot(marginUsed, unrealized decimal.Decimal) Snapshot {
	return Snapshot{
		ID:          l.id,
		Currency:    l.currency,
		FreeBalance: l.free,
		MarginUsed:  marginUsed,
		Unrealized:  unrealized,
		Realized:    l.realized,
		Equity:      l.Equity(marginUsed, unrealized),
		FreeMargin:  l.FreeMargin(marginUsed, unrealized),
		MarginLevel: l.MarginLevel(marginUsed, unrealized),
		TotalPnL:    l.TotalPnL(unrealized),
		Trades:      l.trades,
		Wins:        l.wins,
		Losses:      l.losses,
	}
}
