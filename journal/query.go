package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const tradeColumns = `position_id, order_id, instrument, direction, size, leverage, entry_price,
	exit_price, margin_held, open_time, close_time, realized_pnl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var (
		rec TradeRecord
		dir string
	)
	err := s.Scan(
		&rec.PositionID,
		&rec.OrderID,
		&rec.Instrument,
		&dir,
		&rec.Size,
		&rec.Leverage,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.MarginHeld,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPnL,
		&rec.Reason,
	)
	rec.Direction = marketDirection(dir)
	return rec, err
}

// GetTrade returns the record for a closed position.
func (j *SQLite) GetTrade(positionID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE position_id = ?`, positionID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", positionID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+` FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RealizedTotal sums realized P&L over every recorded trade. The sum is
// done in Go because the column is TEXT.
func (j *SQLite) RealizedTotal() (decimal.Decimal, error) {
	rows, err := j.db.Query(`SELECT realized_pnl FROM trades`)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var pnl decimal.Decimal
		if err := rows.Scan(&pnl); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(pnl)
	}
	return total, rows.Err()
}
