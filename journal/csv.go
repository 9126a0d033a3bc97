package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rustyeddy/margin/market"
)

type CSV struct {
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var (
	tradeHeader  = []string{"position_id", "order_id", "instrument", "direction", "size", "leverage", "entry_price", "exit_price", "margin_held", "open_time", "close_time", "realized_pnl", "reason"}
	equityHeader = []string{"time", "balance", "equity", "margin_used", "free_margin", "margin_level", "realized_pnl", "unrealized_pnl", "open_positions"}
)

func NewCSV(tradesPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		_ = tf.Close()
		return nil, err
	}

	j := &CSV{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}
	if err := j.write(j.trades, tradeHeader); err != nil {
		return nil, err
	}
	if err := j.write(j.equity, equityHeader); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *CSV) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSV) RecordTrade(t TradeRecord) error {
	return j.write(j.trades, []string{
		t.PositionID,
		t.OrderID,
		t.Instrument,
		string(t.Direction),
		t.Size.String(),
		strconv.Itoa(t.Leverage),
		t.EntryPrice.String(),
		t.ExitPrice.String(),
		t.MarginHeld.String(),
		t.OpenTime.Format(time.RFC3339Nano),
		t.CloseTime.Format(time.RFC3339Nano),
		t.RealizedPnL.String(),
		t.Reason,
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	return j.write(j.equity, []string{
		e.Time.Format(time.RFC3339Nano),
		e.Balance.String(),
		e.Equity.String(),
		e.MarginUsed.String(),
		e.FreeMargin.String(),
		e.MarginLevel.StringFixed(2),
		e.RealizedPnL.String(),
		e.UnrealizedPnL.String(),
		strconv.Itoa(e.OpenPositions),
	})
}

func (j *CSV) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func marketDirection(s string) market.Direction {
	if s == string(market.Short) {
		return market.Short
	}
	return market.Long
}
