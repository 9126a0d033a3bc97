package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/margin/account"
	"github.com/rustyeddy/margin/journal"
	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/rustyeddy/margin/pkg/id"
	"github.com/rustyeddy/margin/position"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func newEngine(t *testing.T, balance string, mutate ...func(*Config)) (*Engine, *journal.Memory) {
	t.Helper()
	j := &journal.Memory{}
	cfg := Config{
		Journal: j,
		IDs:     id.NewSeeded(1, func() time.Time { return t0 }),
		Now:     func() time.Time { return t0 },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e := NewEngine(account.New("acct-1", "USD", d(balance)), cfg)
	e.SetInstrument(market.Instrument{
		Symbol:  "BTC_USD",
		Price:   d("45000"),
		MinSize: d("0.0001"),
	})
	return e, j
}

func marketReq(side market.Side, size string, lev int) order.Request {
	return order.Request{
		Instrument: "BTC_USD",
		Side:       side,
		Type:       order.TypeMarket,
		Size:       d(size),
		Leverage:   lev,
	}
}

func place(t *testing.T, e *Engine, req order.Request) Placement {
	t.Helper()
	pl, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return pl
}

func tickAt(t *testing.T, e *Engine, price string, at time.Time) {
	t.Helper()
	require.NoError(t, e.UpdatePrice(market.Tick{Instrument: "BTC_USD", Price: d(price), Time: at}))
}

// committed is free balance plus margin held; it only moves by realized P&L.
func committed(e *Engine) decimal.Decimal {
	a := e.Account()
	return a.FreeBalance.Add(a.MarginUsed)
}

func TestMarketBuyDebitsMarginAndMarks(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))

	assert.Equal(t, StatusFilled, pl.Status)
	require.NotNil(t, pl.Position)
	require.NotNil(t, pl.Fill)

	assert.True(t, d("900").Equal(pl.Order.RequiredMargin))
	assert.True(t, d("9100").Equal(e.Account().FreeBalance), "got %s", e.Account().FreeBalance)

	p := *pl.Position
	assert.True(t, d("45022.5").Equal(p.EntryPrice), "got %s", p.EntryPrice)
	assert.True(t, p.EntryPrice.Equal(pl.Fill.FillPrice))
	assert.True(t, p.CurrentPrice.Equal(p.EntryPrice))
	assert.True(t, p.UnrealizedPnL.IsZero())
	assert.True(t, d("900").Equal(p.MarginHeld))
	assert.Equal(t, market.Long, p.Direction)
	assert.Len(t, e.Positions(), 1)

	tickAt(t, e, "45500", t0.Add(time.Second))
	got, err := e.Position(p.ID)
	require.NoError(t, err)
	assert.True(t, d("95.5").Equal(got.UnrealizedPnL), "got %s", got.UnrealizedPnL)
}

func TestSellFillsBelowReference(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideSell, "0.2", 10))

	assert.True(t, d("44977.5").Equal(pl.Fill.FillPrice))
	assert.True(t, d("22.5").Equal(pl.Fill.Slippage()))
	assert.Equal(t, market.Short, pl.Position.Direction)

	tickAt(t, e, "44000", t0.Add(time.Second))
	p, err := e.Position(pl.Position.ID)
	require.NoError(t, err)
	// (44977.5 - 44000) × 0.2
	assert.True(t, d("195.5").Equal(p.UnrealizedPnL), "got %s", p.UnrealizedPnL)
}

func TestInsufficientBalanceChangesNothing(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "899.99")
	_, err := e.PlaceOrder(context.Background(), marketReq(market.SideBuy, "0.2", 10))

	require.Error(t, err)
	assert.True(t, order.IsReason(err, order.ReasonInsufficientBalance))
	assert.Empty(t, e.Positions())
	assert.True(t, d("899.99").Equal(e.Account().FreeBalance))
	assert.Empty(t, j.Equity)
}

func TestMarketOrderMayUseWholeBalance(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "900")
	place(t, e, marketReq(market.SideBuy, "0.2", 10))
	assert.True(t, e.Account().FreeBalance.IsZero())

	_, err := e.PlaceOrder(context.Background(), marketReq(market.SideBuy, "0.0001", 100))
	assert.True(t, order.IsReason(err, order.ReasonInsufficientBalance))
}

func TestUnknownInstrumentRejected(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	req := marketReq(market.SideBuy, "1", 10)
	req.Instrument = "DOGE_USD"
	_, err := e.PlaceOrder(context.Background(), req)
	assert.True(t, order.IsReason(err, order.ReasonUnknownInstrument))
}

func TestNonMarketOrdersStayPending(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")

	req := marketReq(market.SideBuy, "0.1", 10)
	req.Type = order.TypeLimit
	req.LimitPrice = ptr("40000")

	pl := place(t, e, req)
	assert.Equal(t, StatusPending, pl.Status)
	assert.Nil(t, pl.Position)
	assert.Empty(t, e.Positions())
	assert.True(t, d("10000").Equal(e.Account().FreeBalance), "pending orders reserve nothing")

	// Price crossing the limit does not fill it.
	tickAt(t, e, "39000", t0.Add(time.Second))
	pending := e.PendingOrders()
	require.Len(t, pending, 1)
	assert.Equal(t, pl.OrderID, pending[0].ID)
	assert.Empty(t, e.Positions())

	canceled, err := e.CancelOrder(context.Background(), pl.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Empty(t, e.PendingOrders())

	_, err = e.CancelOrder(context.Background(), pl.OrderID)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPendingOrderDoesNotAliasCallerPrices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(req *order.Request, snap []PendingOrder)
	}{
		{"caller edits request after placing", func(req *order.Request, _ []PendingOrder) {
			*req.LimitPrice = d("1")
			*req.StopLoss = d("2")
		}},
		{"caller edits listed order", func(_ *order.Request, snap []PendingOrder) {
			*snap[0].Order.LimitPrice = d("7")
			*snap[0].Order.StopLoss = d("8")
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newEngine(t, "10000")
			req := marketReq(market.SideBuy, "0.1", 10)
			req.Type = order.TypeLimit
			req.LimitPrice = ptr("44000")
			req.StopLoss = ptr("43000")
			place(t, e, req)

			tt.mutate(&req, e.PendingOrders())

			pending := e.PendingOrders()
			require.Len(t, pending, 1)
			require.NotNil(t, pending[0].Order.LimitPrice)
			require.NotNil(t, pending[0].Order.StopLoss)
			assert.True(t, d("44000").Equal(*pending[0].Order.LimitPrice), "got %s", pending[0].Order.LimitPrice)
			assert.True(t, d("43000").Equal(*pending[0].Order.StopLoss), "got %s", pending[0].Order.StopLoss)
		})
	}
}

func TestTickForUnselectedInstrumentIsNotTradable(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	require.NoError(t, e.UpdatePrice(market.Tick{Instrument: "DOGE_USD", Price: d("0.1"), Time: t0.Add(time.Second)}))

	tk, err := e.LastTick("DOGE_USD")
	require.NoError(t, err)
	assert.True(t, d("0.1").Equal(tk.Price))

	_, err = e.Instrument("DOGE_USD")
	assert.Error(t, err)

	req := marketReq(market.SideBuy, "100", 10)
	req.Instrument = "DOGE_USD"
	_, err = e.PlaceOrder(context.Background(), req)
	assert.True(t, order.IsReason(err, order.ReasonUnknownInstrument), "got %v", err)
	assert.Empty(t, e.Positions())
	assert.True(t, d("10000").Equal(e.Account().FreeBalance))
}

func TestModifyPosition(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))

	p, err := e.ModifyPosition(context.Background(), pl.Position.ID, ptr("44000"), ptr("47000"))
	require.NoError(t, err)
	assert.True(t, d("44000").Equal(*p.StopLoss))
	assert.True(t, d("47000").Equal(*p.TakeProfit))

	p, err = e.ModifyPosition(context.Background(), pl.Position.ID, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, p.StopLoss)
	assert.Nil(t, p.TakeProfit)

	_, err = e.ModifyPosition(context.Background(), "nope", nil, nil)
	assert.ErrorIs(t, err, position.ErrPositionNotFound)
}

func TestCloseTwice(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))
	tickAt(t, e, "45500", t0.Add(time.Second))

	closed, err := e.ClosePosition(context.Background(), pl.Position.ID)
	require.NoError(t, err)
	assert.True(t, d("95.5").Equal(closed.UnrealizedPnL))

	after := e.Account()
	assert.True(t, d("10095.5").Equal(after.FreeBalance), "got %s", after.FreeBalance)
	assert.True(t, d("95.5").Equal(after.Realized))
	assert.True(t, after.MarginUsed.IsZero())

	_, err = e.ClosePosition(context.Background(), pl.Position.ID)
	assert.ErrorIs(t, err, position.ErrPositionNotFound)
	assert.True(t, after.FreeBalance.Equal(e.Account().FreeBalance))

	require.Len(t, j.Trades, 1)
	rec := j.Trades[0]
	assert.Equal(t, ReasonManual, rec.Reason)
	assert.Equal(t, pl.OrderID, rec.OrderID)
	assert.True(t, d("45500").Equal(rec.ExitPrice))
	assert.True(t, d("95.5").Equal(rec.RealizedPnL))
}

func TestCloseAllSettlesExactSum(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "10000")
	seed := d("10000")

	a := place(t, e, marketReq(market.SideBuy, "0.1", 10))
	b := place(t, e, marketReq(market.SideSell, "0.05", 20))
	c := place(t, e, marketReq(market.SideBuy, "0.02", 5))

	margins := a.Position.MarginHeld.Add(b.Position.MarginHeld).Add(c.Position.MarginHeld)
	assert.True(t, seed.Sub(margins).Equal(e.Account().FreeBalance))

	tickAt(t, e, "46000", t0.Add(time.Second))

	var pnl decimal.Decimal
	for _, p := range e.Positions() {
		pnl = pnl.Add(p.UnrealizedPnL)
	}
	wantPnL := d("46000").Sub(a.Fill.FillPrice).Mul(d("0.1")).
		Add(b.Fill.FillPrice.Sub(d("46000")).Mul(d("0.05"))).
		Add(d("46000").Sub(c.Fill.FillPrice).Mul(d("0.02")))
	require.True(t, wantPnL.Equal(pnl), "want %s got %s", wantPnL, pnl)

	res, err := e.CloseAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Closed, 3)
	assert.True(t, margins.Equal(res.Margin))
	assert.True(t, pnl.Equal(res.PnL))
	assert.True(t, margins.Add(pnl).Equal(res.Credited))

	acct := e.Account()
	assert.Empty(t, e.Positions())
	assert.True(t, seed.Add(pnl).Equal(acct.FreeBalance), "got %s", acct.FreeBalance)
	assert.True(t, pnl.Equal(acct.Realized))

	// a and c close in profit, b (short) at a loss.
	assert.Equal(t, 3, acct.Trades)
	assert.Equal(t, 2, acct.Wins)
	assert.Equal(t, 1, acct.Losses)

	require.Len(t, j.Trades, 3)
	for _, rec := range j.Trades {
		assert.Equal(t, ReasonCloseAll, rec.Reason)
	}

	// Nothing left to close.
	res, err = e.CloseAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Closed)
	assert.True(t, res.Credited.IsZero())
	assert.Equal(t, 3, e.Account().Trades)
}

func TestCapitalConservedAcrossOperations(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	ctx := context.Background()
	start := committed(e)

	a := place(t, e, marketReq(market.SideBuy, "0.1", 10))
	assert.True(t, start.Equal(committed(e)))
	place(t, e, marketReq(market.SideSell, "0.1", 50))
	assert.True(t, start.Equal(committed(e)))

	tickAt(t, e, "45300", t0.Add(time.Second))
	assert.True(t, start.Equal(committed(e)), "ticks move no capital")

	closed, err := e.ClosePosition(ctx, a.Position.ID)
	require.NoError(t, err)
	assert.True(t, start.Add(closed.UnrealizedPnL).Equal(committed(e)))

	res, err := e.CloseAll(ctx)
	require.NoError(t, err)
	assert.True(t, start.Add(closed.UnrealizedPnL).Add(res.PnL).Equal(committed(e)))
	assert.True(t, e.Account().Realized.Equal(closed.UnrealizedPnL.Add(res.PnL)))
}

func TestRepeatedTickIsIdempotent(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))

	tk := market.Tick{Instrument: "BTC_USD", Price: d("45123.45"), Time: t0.Add(time.Second)}
	require.NoError(t, e.UpdatePrice(tk))
	first, _ := e.Position(pl.Position.ID)
	require.NoError(t, e.UpdatePrice(tk))
	second, _ := e.Position(pl.Position.ID)

	assert.True(t, first.UnrealizedPnL.Equal(second.UnrealizedPnL))
	assert.True(t, first.UnrealizedPnLPercent.Equal(second.UnrealizedPnLPercent))
}

func TestStaleTickDropped(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))

	tickAt(t, e, "45500", t0.Add(2*time.Second))
	tickAt(t, e, "40000", t0.Add(time.Second))

	p, _ := e.Position(pl.Position.ID)
	assert.True(t, d("45500").Equal(p.CurrentPrice))

	inst, err := e.Instrument("BTC_USD")
	require.NoError(t, err)
	assert.True(t, d("45500").Equal(inst.Price))
}

func TestTickMovesReferencePriceForNextOrder(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	tickAt(t, e, "50000", t0.Add(time.Second))

	pl := place(t, e, marketReq(market.SideBuy, "0.1", 10))
	assert.True(t, d("500").Equal(pl.Order.RequiredMargin))
	assert.True(t, d("50025").Equal(pl.Fill.FillPrice))
}

func TestUpdatePriceRejectsNonPositive(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	assert.Error(t, e.UpdatePrice(market.Tick{Instrument: "BTC_USD", Price: decimal.Zero}))
}

func TestTriggersCloseOnStopLoss(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "10000", func(c *Config) { c.Triggers = true })
	req := marketReq(market.SideBuy, "0.2", 10)
	req.StopLoss = ptr("44500")
	req.TakeProfit = ptr("47000")
	pl := place(t, e, req)

	tickAt(t, e, "44800", t0.Add(time.Second))
	assert.Len(t, e.Positions(), 1)

	tickAt(t, e, "44400", t0.Add(2*time.Second))
	assert.Empty(t, e.Positions())

	require.Len(t, j.Trades, 1)
	assert.Equal(t, ReasonStopLoss, j.Trades[0].Reason)
	assert.Equal(t, pl.Position.ID, j.Trades[0].PositionID)

	// (44400 - 45022.5) × 0.2 = -124.5
	assert.True(t, d("-124.5").Equal(e.Account().Realized))
	assert.True(t, d("9875.5").Equal(e.Account().FreeBalance))
}

func TestTriggersCloseShortOnTakeProfit(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "10000", func(c *Config) { c.Triggers = true })
	req := marketReq(market.SideSell, "0.2", 10)
	req.TakeProfit = ptr("44000")
	place(t, e, req)

	tickAt(t, e, "43900", t0.Add(time.Second))
	assert.Empty(t, e.Positions())
	require.Len(t, j.Trades, 1)
	assert.Equal(t, ReasonTakeProfit, j.Trades[0].Reason)
}

func TestTriggersOffByDefault(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	req := marketReq(market.SideBuy, "0.2", 10)
	req.StopLoss = ptr("44500")
	place(t, e, req)

	tickAt(t, e, "40000", t0.Add(time.Second))
	assert.Len(t, e.Positions(), 1)
}

func TestStopOutClosesWorstFirst(t *testing.T) {
	t.Parallel()

	e, j := newEngine(t, "1000", func(c *Config) { c.StopOutLevel = d("50") })

	// 0.2 × 45000 / 100 = 90 margin each.
	worst := place(t, e, marketReq(market.SideBuy, "0.2", 100))
	place(t, e, marketReq(market.SideBuy, "0.1", 100))

	// Drop hard: long losses grow with size, the 0.2 lot is worst.
	tickAt(t, e, "41000", t0.Add(time.Second))

	require.NotEmpty(t, j.Trades)
	assert.Equal(t, worst.Position.ID, j.Trades[0].PositionID)
	assert.Equal(t, ReasonStopOut, j.Trades[0].Reason)

	a := e.Account()
	if a.MarginUsed.IsPositive() {
		assert.True(t, a.MarginLevel.GreaterThanOrEqual(d("50")))
	}
}

type recorder struct {
	mu     sync.Mutex
	snaps  []Snapshot
	closed []string
}

func (r *recorder) OnSnapshot(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) OnPositionClosed(p position.Position, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, p.ID+":"+reason)
}

func TestListenerSeesSnapshotsAndCloses(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	rec := &recorder{}
	e.AddListener(rec)

	pl := place(t, e, marketReq(market.SideBuy, "0.2", 10))
	tickAt(t, e, "45500", t0.Add(time.Second))
	_, err := e.ClosePosition(context.Background(), pl.Position.ID)
	require.NoError(t, err)

	require.Len(t, rec.snaps, 3)
	assert.Len(t, rec.snaps[0].Positions, 1)
	assert.True(t, d("95.5").Equal(rec.snaps[1].Account.Unrealized))
	assert.Empty(t, rec.snaps[2].Positions)
	assert.Equal(t, []string{pl.Position.ID + ":" + ReasonManual}, rec.closed)
}

func TestCancelledContextRejected(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.PlaceOrder(ctx, marketReq(market.SideBuy, "0.2", 10))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, e.Positions())
}

func TestConcurrentTicksAndCloseAll(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "100000")
	for i := 0; i < 20; i++ {
		place(t, e, marketReq(market.SideBuy, "0.1", 10))
	}
	start := committed(e)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			price := decimal.NewFromInt(45000 + int64(i%50))
			_ = e.UpdatePrice(market.Tick{Instrument: "BTC_USD", Price: price, Time: t0.Add(time.Duration(i) * time.Millisecond)})
		}
	}()

	res, err := e.CloseAll(context.Background())
	require.NoError(t, err)
	wg.Wait()

	assert.Empty(t, e.Positions())
	assert.Len(t, res.Closed, 20)
	assert.True(t, start.Add(res.PnL).Equal(committed(e)))
}

func TestLastTick(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t, "10000")
	_, err := e.LastTick("BTC_USD")
	assert.ErrorIs(t, err, market.ErrNoPrice)

	tickAt(t, e, "45500", t0.Add(time.Second))
	tk, err := e.LastTick("BTC_USD")
	require.NoError(t, err)
	assert.True(t, d("45500").Equal(tk.Price))
}
