package journal

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// JSONL writes one JSON object per line, trades and equity interleaved in
// the order they happen. Each line carries a "kind" of "trade" or "equity".
type JSONL struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc sonic.Encoder
	c   io.Closer
}

type tradeLine struct {
	Kind        string          `json:"kind"`
	PositionID  string          `json:"position_id"`
	OrderID     string          `json:"order_id"`
	Instrument  string          `json:"instrument"`
	Direction   string          `json:"direction"`
	Size        decimal.Decimal `json:"size"`
	Leverage    int             `json:"leverage"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	MarginHeld  decimal.Decimal `json:"margin_held"`
	OpenTime    time.Time       `json:"open_time"`
	CloseTime   time.Time       `json:"close_time"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Reason      string          `json:"reason"`
}

type equityLine struct {
	Kind          string          `json:"kind"`
	Time          time.Time       `json:"time"`
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	MarginUsed    decimal.Decimal `json:"margin_used"`
	FreeMargin    decimal.Decimal `json:"free_margin"`
	MarginLevel   decimal.Decimal `json:"margin_level"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	OpenPositions int             `json:"open_positions"`
}

func NewJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewJSONLWriter(f), nil
}

// NewJSONLWriter writes to w. If w is an io.Closer it is closed by Close.
func NewJSONLWriter(w io.Writer) *JSONL {
	bw := bufio.NewWriter(w)
	j := &JSONL{w: bw, enc: sonic.ConfigDefault.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		j.c = c
	}
	return j
}

func (j *JSONL) emit(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(v); err != nil {
		return err
	}
	return j.w.Flush()
}

func (j *JSONL) RecordTrade(t TradeRecord) error {
	return j.emit(tradeLine{
		Kind:        "trade",
		PositionID:  t.PositionID,
		OrderID:     t.OrderID,
		Instrument:  t.Instrument,
		Direction:   string(t.Direction),
		Size:        t.Size,
		Leverage:    t.Leverage,
		EntryPrice:  t.EntryPrice,
		ExitPrice:   t.ExitPrice,
		MarginHeld:  t.MarginHeld,
		OpenTime:    t.OpenTime,
		CloseTime:   t.CloseTime,
		RealizedPnL: t.RealizedPnL,
		Reason:      t.Reason,
	})
}

func (j *JSONL) RecordEquity(e EquitySnapshot) error {
	return j.emit(equityLine{
		Kind:          "equity",
		Time:          e.Time,
		Balance:       e.Balance,
		Equity:        e.Equity,
		MarginUsed:    e.MarginUsed,
		FreeMargin:    e.FreeMargin,
		MarginLevel:   e.MarginLevel,
		RealizedPnL:   e.RealizedPnL,
		UnrealizedPnL: e.UnrealizedPnL,
		OpenPositions: e.OpenPositions,
	})
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.w.Flush(); err != nil {
		return err
	}
	if j.c != nil {
		return j.c.Close()
	}
	return nil
}
