package sim

import (
	"errors"

	"github.com/rustyeddy/margin/market"
	"github.com/rustyeddy/margin/order"
	"github.com/shopspring/decimal"
)

// DefaultSlippage is the fraction of price a market order pays over mid.
var DefaultSlippage = decimal.RequireFromString("0.0005")

var ErrNotMarketOrder = errors.New("only market orders are filled")

// Execution is a simulated fill of a market order.
type Execution struct {
	Instrument     string
	Side           market.Side
	Size           decimal.Decimal
	Leverage       int
	ReferencePrice decimal.Decimal
	FillPrice      decimal.Decimal
	MarginHeld     decimal.Decimal
}

// Slippage is the per-unit price difference paid against the reference.
func (x Execution) Slippage() decimal.Decimal {
	return x.FillPrice.Sub(x.ReferencePrice).Abs()
}

// Fill prices a validated market order at current, always against the
// taker: buys above, sells below. The margin held is the order's
// validated required margin, so what the account is debited and what the
// position holds are the same amount.
func Fill(o order.Order, current, slippage decimal.Decimal) (Execution, error) {
	if !o.IsMarket() {
		return Execution{}, ErrNotMarketOrder
	}
	if !current.IsPositive() {
		return Execution{}, ErrNoPrice
	}

	factor := decimal.NewFromInt(1).Add(slippage)
	if o.Side == market.SideSell {
		factor = decimal.NewFromInt(1).Sub(slippage)
	}

	return Execution{
		Instrument:     o.Instrument,
		Side:           o.Side,
		Size:           o.Size,
		Leverage:       o.Leverage,
		ReferencePrice: current,
		FillPrice:      current.Mul(factor),
		MarginHeld:     o.RequiredMargin,
	}, nil
}
