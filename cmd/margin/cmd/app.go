package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/rustyeddy/margin/account"
	"github.com/rustyeddy/margin/config"
	"github.com/rustyeddy/margin/journal"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/pkg/logging"
	"github.com/rustyeddy/margin/position"
	"github.com/rustyeddy/margin/sim"
	"go.uber.org/zap"
)

// app holds what every command needs: a logger, a journal and an engine.
type app struct {
	log     *zap.Logger
	journal journal.Journal
	engine  *sim.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(cfg.JournalOptions())
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}

	inst, err := market.Lookup(cfg.Feed.Instrument)
	if err != nil {
		j.Close()
		return nil, err
	}

	engine := sim.NewEngine(
		account.New(cfg.Account.ID, cfg.Account.Currency, cfg.Account.Balance),
		sim.Config{
			Slippage:     cfg.Engine.Slippage,
			Triggers:     cfg.Engine.Triggers,
			StopOutLevel: cfg.Engine.StopOutLevel,
			Journal:      j,
			Logger:       log,
		},
	)
	engine.SetInstrument(inst.WithPrice(cfg.StartPrice()))

	return &app{log: log, journal: j, engine: engine}, nil
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		a.log.Warn("close journal", zap.Error(err))
	}
	_ = a.log.Sync()
}

// printer writes one line per snapshot and per closed position.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) OnSnapshot(s sim.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printSnapshot(p.out, s)
}

func (p *printer) OnPositionClosed(pos position.Position, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "  closed %s %s %s %s @ %s pnl %s (%s)\n",
		short(pos.ID), pos.Direction, pos.Size, pos.Instrument,
		pos.CurrentPrice.StringFixed(2), pos.UnrealizedPnL.StringFixed(2), reason)
}

func printSnapshot(w io.Writer, s sim.Snapshot) {
	a := s.Account
	fmt.Fprintf(w, "%s  balance %s  equity %s  margin %s  free margin %s  pnl %s  positions %d\n",
		s.Time.Format("15:04:05"),
		a.FreeBalance.StringFixed(2), a.Equity.StringFixed(2), a.MarginUsed.StringFixed(2),
		a.FreeMargin.StringFixed(2), a.Unrealized.StringFixed(2), len(s.Positions))
}

func printPositions(w io.Writer, positions []position.Position) {
	for _, p := range positions {
		fmt.Fprintf(w, "  %s %-5s %s %s x%d entry %s mark %s pnl %s (%s%%)\n",
			short(p.ID), p.Direction, p.Size, p.Instrument, p.Leverage,
			p.EntryPrice.StringFixed(2), p.CurrentPrice.StringFixed(2),
			p.UnrealizedPnL.StringFixed(2), p.UnrealizedPnLPercent.StringFixed(2))
	}
}

func printAccount(w io.Writer, a account.Snapshot) {
	fmt.Fprintf(w, "Account %s (%s)\n", a.ID, a.Currency)
	fmt.Fprintf(w, "  Free balance:  %s\n", a.FreeBalance.StringFixed(2))
	fmt.Fprintf(w, "  Margin used:   %s\n", a.MarginUsed.StringFixed(2))
	fmt.Fprintf(w, "  Equity:        %s\n", a.Equity.StringFixed(2))
	fmt.Fprintf(w, "  Free margin:   %s\n", a.FreeMargin.StringFixed(2))
	fmt.Fprintf(w, "  Unrealized:    %s\n", a.Unrealized.StringFixed(2))
	fmt.Fprintf(w, "  Realized:      %s\n", a.Realized.StringFixed(2))
	if a.MarginLevel.IsPositive() {
		fmt.Fprintf(w, "  Margin level:  %s%%\n", a.MarginLevel.StringFixed(1))
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
