package sim

import (
	"testing"

	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillAppliesSlippageAgainstTaker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		side market.Side
		want string
	}{
		{"buy pays above", market.SideBuy, "45022.5"},
		{"sell receives below", market.SideSell, "44977.5"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := order.Order{
				Request:        order.Request{Instrument: "BTC_USD", Side: tt.side, Type: order.TypeMarket, Size: d("0.2"), Leverage: 10},
				RequiredMargin: d("900"),
			}
			x, err := Fill(o, d("45000"), DefaultSlippage)
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(x.FillPrice), "got %s", x.FillPrice)
			assert.True(t, d("900").Equal(x.MarginHeld))
			assert.True(t, d("22.5").Equal(x.Slippage()))
		})
	}
}

func TestFillErrors(t *testing.T) {
	t.Parallel()

	mkt := order.Order{Request: order.Request{Type: order.TypeMarket, Side: market.SideBuy, Size: d("1")}}
	_, err := Fill(mkt, decimal.Zero, DefaultSlippage)
	assert.ErrorIs(t, err, ErrNoPrice)

	lim := order.Order{Request: order.Request{Type: order.TypeLimit, Side: market.SideBuy, Size: d("1")}}
	_, err = Fill(lim, d("100"), DefaultSlippage)
	assert.ErrorIs(t, err, ErrNotMarketOrder)
}

func TestPendingBookKeepsOrder(t *testing.T) {
	t.Parallel()

	b := newPendingBook()
	b.add(PendingOrder{ID: "a", Status: StatusPending})
	b.add(PendingOrder{ID: "b", Status: StatusPending})
	b.add(PendingOrder{ID: "c", Status: StatusPending})

	got, err := b.cancel("b")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)

	list := b.list()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)

	_, err = b.cancel("b")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
