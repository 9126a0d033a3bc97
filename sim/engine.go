// Package sim is the order intake and position engine. Engine is the one
// serialization point for a simulated margin account: price ticks and
// user requests both take its mutex before touching the account or the
// position ledger.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/margin/account"
	"github.com/rustyeddy/margin/journal"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/rustyeddy/margin/pkg/id"
	"github.com/rustyeddy/margin/position"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoPrice is returned when an instrument has no usable reference price.
var ErrNoPrice = market.ErrNoPrice

// Close reasons recorded in the journal and passed to listeners.
const (
	ReasonManual     = "ManualClose"
	ReasonCloseAll   = "CloseAll"
	ReasonStopLoss   = "StopLoss"
	ReasonTakeProfit = "TakeProfit"
	ReasonStopOut    = "StopOut"
)

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Slippage decimal.Decimal
	// Triggers closes positions whose stop-loss or take-profit is crossed
	// by a tick.
	Triggers bool
	// StopOutLevel is a margin level percentage below which the worst
	// position is force-closed. Zero disables stop-out.
	StopOutLevel decimal.Decimal

	Journal journal.Journal
	Logger  *zap.Logger
	IDs     *id.Generator
	Now     func() time.Time
}

// Listener is how the display layer learns about changes. Calls happen
// after the engine lock is released, so a listener may call back into the
// engine.
type Listener interface {
	OnSnapshot(Snapshot)
	OnPositionClosed(p position.Position, reason string)
}

// Snapshot is a read-only copy of the engine state.
type Snapshot struct {
	Time      time.Time
	Account   account.Snapshot
	Positions []position.Position
	Pending   []PendingOrder
}

// Placement is the outcome of an accepted order.
type Placement struct {
	OrderID  string
	Status   OrderStatus
	Order    order.Order
	Fill     *Execution
	Position *position.Position
}

// CloseAllResult reports one bulk settlement.
type CloseAllResult struct {
	Closed   []position.Position
	Margin   decimal.Decimal
	PnL      decimal.Decimal
	Credited decimal.Decimal
}

type closedEvent struct {
	pos    position.Position
	reason string
}

type Engine struct {
	mu          sync.Mutex
	acct        *account.Ledger
	book        *position.Ledger
	pending     *pendingBook
	instruments map[string]market.Instrument
	ticks       *market.TickStore

	cfg       Config
	log       *zap.Logger
	listeners []Listener
}

func NewEngine(acct *account.Ledger, cfg Config) *Engine {
	if cfg.Slippage.IsZero() {
		cfg.Slippage = DefaultSlippage
	}
	if cfg.Journal == nil {
		cfg.Journal = journal.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IDs == nil {
		cfg.IDs = id.NewGenerator()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		acct:        acct,
		book:        position.NewLedger(),
		pending:     newPendingBook(),
		instruments: make(map[string]market.Instrument),
		ticks:       market.NewTickStore(),
		cfg:         cfg,
		log:         cfg.Logger,
	}
}

// AddListener registers l for snapshot and close notifications.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// SetInstrument makes inst tradable with its reference price. Selecting
// an instrument again replaces its reference price.
func (e *Engine) SetInstrument(inst market.Instrument) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.instruments[inst.Symbol] = inst
}

func (e *Engine) Instrument(symbol string) (market.Instrument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instruments[symbol]
	if !ok {
		return market.Instrument{}, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return inst, nil
}

// PlaceOrder validates req against the account and the instrument's
// current price. Market orders are filled immediately; other types are
// accepted as pending.
func (e *Engine) PlaceOrder(ctx context.Context, req order.Request) (Placement, error) {
	if err := ctx.Err(); err != nil {
		return Placement{}, err
	}

	e.mu.Lock()

	inst, ok := e.instruments[req.Instrument]
	if ok && !inst.Price.IsPositive() {
		e.mu.Unlock()
		return Placement{}, fmt.Errorf("place order %s: %w", req.Instrument, ErrNoPrice)
	}

	o, err := order.Validate(req, e.accountLocked(), inst)
	if err != nil {
		e.mu.Unlock()
		e.log.Info("order rejected",
			zap.String("instrument", req.Instrument),
			zap.String("side", string(req.Side)),
			zap.String("type", string(req.Type)),
			zap.String("size", req.Size.String()),
			zap.Int("leverage", req.Leverage),
			zap.Error(err))
		return Placement{}, err
	}

	orderID := e.cfg.IDs.New()
	now := e.cfg.Now().UTC()

	if !o.IsMarket() {
		e.pending.add(PendingOrder{ID: orderID, Order: o, Status: StatusPending, CreatedAt: now})
		snap := e.snapshotLocked(now)
		listeners := e.listeners
		e.mu.Unlock()

		e.log.Info("order pending",
			zap.String("order_id", orderID),
			zap.String("type", string(o.Type)),
			zap.String("instrument", o.Instrument))
		notify(listeners, snap, nil)
		return Placement{OrderID: orderID, Status: StatusPending, Order: o}, nil
	}

	p, x, err := e.fillLocked(orderID, o, inst.Price, now)
	if err != nil {
		e.mu.Unlock()
		return Placement{}, err
	}
	snap := e.snapshotLocked(now)
	e.recordEquityLocked(snap)
	listeners := e.listeners
	e.mu.Unlock()

	e.log.Info("order filled",
		zap.String("order_id", orderID),
		zap.String("position_id", p.ID),
		zap.String("instrument", p.Instrument),
		zap.String("direction", string(p.Direction)),
		zap.String("size", p.Size.String()),
		zap.String("fill_price", x.FillPrice.String()),
		zap.String("margin", p.MarginHeld.String()))
	notify(listeners, snap, nil)

	return Placement{OrderID: orderID, Status: StatusFilled, Order: o, Fill: &x, Position: &p}, nil
}

// fillLocked executes a validated market order: debit the margin, then
// open the position. Nothing is left half-applied on failure.
func (e *Engine) fillLocked(orderID string, o order.Order, price decimal.Decimal, now time.Time) (position.Position, Execution, error) {
	x, err := Fill(o, price, e.cfg.Slippage)
	if err != nil {
		return position.Position{}, Execution{}, fmt.Errorf("fill %s: %w", orderID, err)
	}
	if err := e.acct.Debit(x.MarginHeld); err != nil {
		return position.Position{}, Execution{}, fmt.Errorf("fill %s: %w", orderID, err)
	}

	p, err := e.book.Open(position.Position{
		ID:         e.cfg.IDs.New(),
		OrderID:    orderID,
		Instrument: o.Instrument,
		Direction:  o.Side.Direction(),
		Size:       x.Size,
		Leverage:   x.Leverage,
		EntryPrice: x.FillPrice,
		MarginHeld: x.MarginHeld,
		OpenedAt:   now,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
	})
	if err != nil {
		e.acct.Credit(x.MarginHeld)
		return position.Position{}, Execution{}, fmt.Errorf("fill %s: %w", orderID, err)
	}
	return p, x, nil
}

// CancelOrder removes a pending order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (PendingOrder, error) {
	if err := ctx.Err(); err != nil {
		return PendingOrder{}, err
	}

	e.mu.Lock()
	po, err := e.pending.cancel(orderID)
	if err != nil {
		e.mu.Unlock()
		return PendingOrder{}, err
	}
	snap := e.snapshotLocked(e.cfg.Now().UTC())
	listeners := e.listeners
	e.mu.Unlock()

	e.log.Info("order canceled", zap.String("order_id", orderID))
	notify(listeners, snap, nil)
	return po, nil
}

// ModifyPosition overwrites the stop-loss and take-profit of an open
// position. A nil bound clears it.
func (e *Engine) ModifyPosition(ctx context.Context, positionID string, stopLoss, takeProfit *decimal.Decimal) (position.Position, error) {
	if err := ctx.Err(); err != nil {
		return position.Position{}, err
	}

	e.mu.Lock()
	p, err := e.book.Modify(positionID, stopLoss, takeProfit)
	if err != nil {
		e.mu.Unlock()
		return position.Position{}, err
	}
	snap := e.snapshotLocked(e.cfg.Now().UTC())
	listeners := e.listeners
	e.mu.Unlock()

	e.log.Debug("position modified", zap.String("position_id", positionID))
	notify(listeners, snap, nil)
	return p, nil
}

// ClosePosition closes one position at its last computed P&L and credits
// margin plus P&L back to the free balance.
func (e *Engine) ClosePosition(ctx context.Context, positionID string) (position.Position, error) {
	if err := ctx.Err(); err != nil {
		return position.Position{}, err
	}

	e.mu.Lock()
	now := e.cfg.Now().UTC()
	p, err := e.closeLocked(positionID, ReasonManual, now)
	if err != nil {
		e.mu.Unlock()
		return position.Position{}, err
	}
	snap := e.snapshotLocked(now)
	e.recordEquityLocked(snap)
	listeners := e.listeners
	e.mu.Unlock()

	e.log.Info("position closed",
		zap.String("position_id", p.ID),
		zap.String("reason", ReasonManual),
		zap.String("pnl", p.UnrealizedPnL.String()))
	notify(listeners, snap, []closedEvent{{pos: p, reason: ReasonManual}})
	return p, nil
}

// CloseAll closes every open position in one step and credits the sum of
// margin plus P&L in a single settlement. A concurrent tick either sees
// all positions open or none.
func (e *Engine) CloseAll(ctx context.Context) (CloseAllResult, error) {
	if err := ctx.Err(); err != nil {
		return CloseAllResult{}, err
	}

	e.mu.Lock()
	now := e.cfg.Now().UTC()
	closed := e.book.CloseAll()

	res := CloseAllResult{Closed: closed, Margin: decimal.Zero, PnL: decimal.Zero}
	pnls := make([]decimal.Decimal, 0, len(closed))
	for _, p := range closed {
		res.Margin = res.Margin.Add(p.MarginHeld)
		res.PnL = res.PnL.Add(p.UnrealizedPnL)
		pnls = append(pnls, p.UnrealizedPnL)
	}
	res.Credited = res.Margin.Add(res.PnL)
	e.acct.SettleAll(res.Margin, pnls)

	events := make([]closedEvent, 0, len(closed))
	for _, p := range closed {
		e.recordTradeLocked(p, ReasonCloseAll, now)
		events = append(events, closedEvent{pos: p, reason: ReasonCloseAll})
	}
	snap := e.snapshotLocked(now)
	e.recordEquityLocked(snap)
	listeners := e.listeners
	e.mu.Unlock()

	e.log.Info("closed all positions",
		zap.Int("count", len(closed)),
		zap.String("credited", res.Credited.String()),
		zap.String("pnl", res.PnL.String()))
	notify(listeners, snap, events)
	return res, nil
}

// UpdatePrice applies a tick: the instrument's reference price moves, every
// open position on it is marked, and stop triggers run if enabled. Ticks
// older than the last one seen for the instrument are dropped.
func (e *Engine) UpdatePrice(t market.Tick) error {
	if !t.Price.IsPositive() {
		return fmt.Errorf("update price %s: non-positive price %s", t.Instrument, t.Price)
	}

	e.mu.Lock()

	if last, err := e.ticks.Get(t.Instrument); err == nil && t.Time.Before(last.Time) {
		e.mu.Unlock()
		e.log.Debug("stale tick dropped",
			zap.String("instrument", t.Instrument),
			zap.Time("tick", t.Time),
			zap.Time("last", last.Time))
		return nil
	}
	e.ticks.Set(t)

	// Only selected instruments become tradable; other ticks still mark
	// any open positions on that symbol.
	if inst, ok := e.instruments[t.Instrument]; ok {
		e.instruments[t.Instrument] = inst.WithPrice(t.Price)
	}

	touched := e.book.Recompute(t)

	now := t.Time
	if now.IsZero() {
		now = e.cfg.Now().UTC()
	}

	var events []closedEvent
	if e.cfg.Triggers {
		events = append(events, e.triggersLocked(touched, now)...)
	}
	if e.cfg.StopOutLevel.IsPositive() {
		events = append(events, e.stopOutLocked(now)...)
	}

	snap := e.snapshotLocked(now)
	e.recordEquityLocked(snap)
	listeners := e.listeners
	e.mu.Unlock()

	for _, ev := range events {
		e.log.Info("position closed",
			zap.String("position_id", ev.pos.ID),
			zap.String("reason", ev.reason),
			zap.String("pnl", ev.pos.UnrealizedPnL.String()))
	}
	notify(listeners, snap, events)
	return nil
}

// closeLocked removes one position, settles it and journals the trade.
func (e *Engine) closeLocked(positionID, reason string, now time.Time) (position.Position, error) {
	p, err := e.book.Close(positionID)
	if err != nil {
		return position.Position{}, fmt.Errorf("close position: %w", err)
	}
	e.acct.Settle(p.MarginHeld, p.UnrealizedPnL)
	e.recordTradeLocked(p, reason, now)
	return p, nil
}

func (e *Engine) recordTradeLocked(p position.Position, reason string, now time.Time) {
	err := e.cfg.Journal.RecordTrade(journal.TradeRecord{
		PositionID:  p.ID,
		OrderID:     p.OrderID,
		Instrument:  p.Instrument,
		Direction:   p.Direction,
		Size:        p.Size,
		Leverage:    p.Leverage,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   p.CurrentPrice,
		MarginHeld:  p.MarginHeld,
		OpenTime:    p.OpenedAt,
		CloseTime:   now,
		RealizedPnL: p.UnrealizedPnL,
		Reason:      reason,
	})
	if err != nil {
		e.log.Warn("journal trade", zap.String("position_id", p.ID), zap.Error(err))
	}
}

func (e *Engine) recordEquityLocked(s Snapshot) {
	err := e.cfg.Journal.RecordEquity(journal.EquitySnapshot{
		Time:          s.Time,
		Balance:       s.Account.FreeBalance,
		Equity:        s.Account.Equity,
		MarginUsed:    s.Account.MarginUsed,
		FreeMargin:    s.Account.FreeMargin,
		MarginLevel:   s.Account.MarginLevel,
		RealizedPnL:   s.Account.Realized,
		UnrealizedPnL: s.Account.Unrealized,
		OpenPositions: len(s.Positions),
	})
	if err != nil {
		e.log.Warn("journal equity", zap.Error(err))
	}
}

func (e *Engine) accountLocked() account.Snapshot {
	return e.acct.Snapshot(e.book.MarginUsed(), e.book.UnrealizedPnL())
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Time:      now,
		Account:   e.accountLocked(),
		Positions: e.book.Snapshot(),
		Pending:   e.pending.list(),
	}
}

// LastTick is the most recent tick applied for symbol.
func (e *Engine) LastTick(symbol string) (market.Tick, error) {
	return e.ticks.Get(symbol)
}

// Account returns the current account figures.
func (e *Engine) Account() account.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountLocked()
}

// Positions returns copies of the open positions in open order.
func (e *Engine) Positions() []position.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Snapshot()
}

func (e *Engine) Position(positionID string) (position.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.Get(positionID)
}

func (e *Engine) PendingOrders() []PendingOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.list()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.cfg.Now().UTC())
}

func notify(listeners []Listener, snap Snapshot, closed []closedEvent) {
	for _, l := range listeners {
		for _, ev := range closed {
			l.OnPositionClosed(ev.pos, ev.reason)
		}
		l.OnSnapshot(snap)
	}
}
