package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CSVFile replays ticks recorded in a CSV file. Rows are either
//
//	time,instrument,price
//	time,instrument,bid,ask
//
// with RFC3339 times; the two-sided form is replayed at the mid. A header
// row starting with "time" is skipped, as are malformed rows, rows for
// other instruments when Instrument is set and rows outside [From, To).
type CSVFile struct {
	Path       string
	Instrument string
	From, To   time.Time
	Log        *zap.Logger
}

func NewCSVFile(path, instrument string) *CSVFile {
	return &CSVFile{Path: path, Instrument: instrument, Log: zap.NewNop()}
}

// Subscribe opens the file before returning so a bad path is reported
// to the caller rather than as an early channel close.
func (c *CSVFile) Subscribe(ctx context.Context) (<-chan market.Tick, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("csv feed: %w", err)
	}

	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	out := make(chan market.Tick)
	go func() {
		defer close(out)
		defer f.Close()

		var (
			seq  uint64
			last time.Time
			line int
		)
		for {
			row, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			line++
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				log.Debug("csv feed: malformed row skipped", zap.String("path", c.Path), zap.Error(err))
				continue
			}
			if err != nil {
				log.Error("csv feed: read failed, stopping early",
					zap.String("path", c.Path), zap.Uint64("delivered", seq), zap.Error(err))
				return
			}
			if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}

			t, ok, err := parseTickRow(row)
			if err != nil {
				log.Debug("csv feed: bad row skipped", zap.Int("line", line), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			if c.Instrument != "" && t.Instrument != c.Instrument {
				continue
			}
			if !inRange(t.Time, c.From, c.To) || t.Time.Before(last) {
				continue
			}
			last = t.Time
			seq++
			t.Seq = seq
			if !send(ctx, out, t) {
				return
			}
		}
	}()
	return out, nil
}

func parseTickRow(row []string) (market.Tick, bool, error) {
	if len(row) < 3 {
		return market.Tick{}, false, nil
	}
	ts := strings.TrimSpace(row[0])
	inst := strings.TrimSpace(row[1])
	if ts == "" || inst == "" {
		return market.Tick{}, false, nil
	}
	when, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad time %q: %w", ts, err)
	}

	price, err := decimal.NewFromString(strings.TrimSpace(row[2]))
	if err != nil {
		return market.Tick{}, false, fmt.Errorf("bad price %q: %w", row[2], err)
	}
	if len(row) >= 4 && strings.TrimSpace(row[3]) != "" {
		ask, err := decimal.NewFromString(strings.TrimSpace(row[3]))
		if err != nil {
			return market.Tick{}, false, fmt.Errorf("bad ask %q: %w", row[3], err)
		}
		price = price.Add(ask).Div(decimal.NewFromInt(2))
	}
	if !price.IsPositive() {
		return market.Tick{}, false, nil
	}
	return market.Tick{Instrument: inst, Price: price, Time: when.UTC()}, true, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
