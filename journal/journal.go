// Package journal records closed positions and account snapshots. The
// engine writes to a Journal; sinks decide where the records go.
package journal

import (
	"time"

	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

// TradeRecord is written once per closed position.
type TradeRecord struct {
	PositionID  string
	OrderID     string
	Instrument  string
	Direction   market.Direction
	Size        decimal.Decimal
	Leverage    int
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	MarginHeld  decimal.Decimal
	OpenTime    time.Time
	CloseTime   time.Time
	RealizedPnL decimal.Decimal
	Reason      string
}

// EquitySnapshot is the account state after a tick or a close.
type EquitySnapshot struct {
	Time          time.Time
	Balance       decimal.Decimal // free balance
	Equity        decimal.Decimal
	MarginUsed    decimal.Decimal
	FreeMargin    decimal.Decimal
	MarginLevel   decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	OpenPositions int
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error       { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                        { return nil }

// Memory keeps records in slices. Useful for tests and the demo command.
type Memory struct {
	Trades []TradeRecord
	Equity []EquitySnapshot
	Closed bool
}

func (m *Memory) RecordTrade(rec TradeRecord) error {
	m.Trades = append(m.Trades, rec)
	return nil
}

func (m *Memory) RecordEquity(rec EquitySnapshot) error {
	m.Equity = append(m.Equity, rec)
	return nil
}

func (m *Memory) Close() error {
	m.Closed = true
	return nil
}
