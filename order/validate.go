// Package order validates order requests against the account and the
// instrument. Validation is a pure read-and-decide step.
package order

import (
	"slices"

	"github.com/rustyeddy/margin/account"
	"github.com/rustyeddy/margin/market"
	"github.com/shopspring/decimal"
)

// Validate checks req and returns the normalized order or a
// *ValidationError. Checks run in a fixed order and the first violation
// wins:
//
//  1. size > 0 and within the instrument bounds
//  2. required price fields for the order type are present
//  3. notional = size × effective price
//  4. required margin = notional / leverage
//  5. required margin ≤ free balance
//  6. leverage is one of LeverageTiers
//
// Side, type, time in force and instrument are checked structurally
// before step 1.
func Validate(req Request, acct account.Snapshot, inst market.Instrument) (Order, error) {
	if req.Instrument == "" || req.Instrument != inst.Symbol {
		return Order{}, reject(ReasonUnknownInstrument, "%q", req.Instrument)
	}
	if !req.Side.Valid() {
		return Order{}, reject(ReasonInvalidSide, "%q", req.Side)
	}
	if !req.Type.Valid() {
		return Order{}, reject(ReasonInvalidType, "%q", req.Type)
	}
	if req.TimeInForce == "" {
		req.TimeInForce = GTC
	}
	if !req.TimeInForce.Valid() {
		return Order{}, reject(ReasonInvalidTimeInForce, "%q", req.TimeInForce)
	}

	// 1
	if !req.Size.IsPositive() {
		return Order{}, reject(ReasonInvalidSize, "size %s must be positive", req.Size)
	}
	if inst.MinSize.IsPositive() && req.Size.LessThan(inst.MinSize) {
		return Order{}, reject(ReasonInvalidSize, "size %s below minimum %s", req.Size, inst.MinSize)
	}
	if inst.MaxSize.IsPositive() && req.Size.GreaterThan(inst.MaxSize) {
		return Order{}, reject(ReasonInvalidSize, "size %s above maximum %s", req.Size, inst.MaxSize)
	}

	// 2
	for _, name := range requiredFields[req.Type] {
		v := req.field(name)
		if v == nil {
			return Order{}, missing(name)
		}
		if !v.IsPositive() {
			ve := missing(name)
			ve.Detail = "must be positive"
			return Order{}, ve
		}
	}

	// 3
	effective := inst.Price
	if req.Type == TypeLimit || req.Type == TypeStopLimit {
		effective = *req.LimitPrice
	}
	notional := req.Size.Mul(effective)

	// 4
	if req.Leverage <= 0 {
		return Order{}, reject(ReasonInvalidLeverage, "leverage %d must be positive", req.Leverage)
	}
	required := notional.Div(decimal.NewFromInt(int64(req.Leverage)))

	// 5
	if required.GreaterThan(acct.FreeBalance) {
		return Order{}, reject(ReasonInsufficientBalance, "required margin %s exceeds free balance %s",
			required.StringFixed(2), acct.FreeBalance.StringFixed(2))
	}

	// 6
	if !slices.Contains(LeverageTiers, req.Leverage) {
		return Order{}, reject(ReasonInvalidLeverage, "leverage %d not in %v", req.Leverage, LeverageTiers)
	}

	return Order{
		Request:        normalize(req),
		EffectivePrice: effective,
		Notional:       notional,
		RequiredMargin: required,
	}, nil
}

// normalize drops entry price fields the variant does not use.
func normalize(req Request) Request {
	keep := requiredFields[req.Type]
	if !slices.Contains(keep, FieldLimitPrice) {
		req.LimitPrice = nil
	}
	if !slices.Contains(keep, FieldStopPrice) {
		req.StopPrice = nil
	}
	return req
}
