package order

import (
	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeMarket       Type = "market"
	TypeLimit        Type = "limit"
	TypeStop         Type = "stop"
	TypeStopLimit    Type = "stop_limit"
	TypeTakeProfit   Type = "take_profit"
	TypeTrailingStop Type = "trailing_stop"
	TypeOCO          Type = "oco"
)

type TimeInForce string

const (
	GTC TimeInForce = "gtc"
	IOC TimeInForce = "ioc"
	FOK TimeInForce = "fok"
	Day TimeInForce = "day"
)

// Field names used in missing_field reasons.
const (
	FieldLimitPrice = "limit_price"
	FieldStopPrice  = "stop_price"
	FieldTakeProfit = "take_profit"
)

// requiredFields is the per-variant field contract.
var requiredFields = map[Type][]string{
	TypeMarket:       nil,
	TypeLimit:        {FieldLimitPrice},
	TypeStop:         {FieldStopPrice},
	TypeStopLimit:    {FieldStopPrice, FieldLimitPrice},
	TypeTakeProfit:   {FieldTakeProfit},
	TypeTrailingStop: {FieldStopPrice},
	TypeOCO:          {FieldLimitPrice, FieldStopPrice},
}

func (t Type) Valid() bool {
	_, ok := requiredFields[t]
	return ok
}

// RequiredFields returns the price fields the order type must carry.
func (t Type) RequiredFields() []string {
	return append([]string(nil), requiredFields[t]...)
}

func (tif TimeInForce) Valid() bool {
	switch tif {
	case GTC, IOC, FOK, Day:
		return true
	}
	return false
}

// LeverageTiers are the discrete leverage settings an order may use.
var LeverageTiers = []int{1, 2, 5, 10, 20, 50, 100}

// Request is an order as submitted by the display layer.
type Request struct {
	Instrument  string
	Side        market.Side
	Type        Type
	Size        decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	TakeProfit  *decimal.Decimal
	StopLoss    *decimal.Decimal
	Leverage    int
	TimeInForce TimeInForce
	ClientRef   string
}

func (r Request) field(name string) *decimal.Decimal {
	switch name {
	case FieldLimitPrice:
		return r.LimitPrice
	case FieldStopPrice:
		return r.StopPrice
	case FieldTakeProfit:
		return r.TakeProfit
	}
	return nil
}

// Order is a request that passed validation. Price fields outside the
// variant's contract are cleared, except the position bracket (StopLoss,
// TakeProfit) which carries over to the opened position.
type Order struct {
	Request
	EffectivePrice decimal.Decimal
	Notional       decimal.Decimal
	RequiredMargin decimal.Decimal
}

func (o Order) IsMarket() bool { return o.Type == TypeMarket }

// Clone returns a copy of o that shares no price pointers with it.
func (o Order) Clone() Order {
	o.LimitPrice = copyPtr(o.LimitPrice)
	o.StopPrice = copyPtr(o.StopPrice)
	o.TakeProfit = copyPtr(o.TakeProfit)
	o.StopLoss = copyPtr(o.StopLoss)
	return o
}

func copyPtr(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
