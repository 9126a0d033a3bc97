// market/instruments.go
package market

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindCrypto    Kind = "crypto"
	KindForex     Kind = "forex"
	KindStock     Kind = "stock"
	KindIndex     Kind = "index"
	KindCommodity Kind = "commodity"
)

// Instrument is the tradable symbol the engine marks positions against.
// Price is the last known reference price and is overwritten by ticks.
type Instrument struct {
	Symbol  string
	Kind    Kind
	Price   decimal.Decimal
	MinSize decimal.Decimal // zero means no lower bound beyond > 0
	MaxSize decimal.Decimal // zero means unbounded
}

// WithPrice returns a copy of the instrument carrying p as its reference price.
func (i Instrument) WithPrice(p decimal.Decimal) Instrument {
	i.Price = p
	return i
}

var Instruments = map[string]Instrument{
	"BTC_USD": {
		Symbol:  "BTC_USD",
		Kind:    KindCrypto,
		Price:   decimal.NewFromInt(45000),
		MinSize: decimal.RequireFromString("0.0001"),
		MaxSize: decimal.NewFromInt(100),
	},
	"ETH_USD": {
		Symbol:  "ETH_USD",
		Kind:    KindCrypto,
		Price:   decimal.NewFromInt(2500),
		MinSize: decimal.RequireFromString("0.001"),
		MaxSize: decimal.NewFromInt(1000),
	},
	"EUR_USD": {
		Symbol:  "EUR_USD",
		Kind:    KindForex,
		Price:   decimal.RequireFromString("1.085"),
		MinSize: decimal.NewFromInt(1),
	},
	"XAU_USD": {
		Symbol:  "XAU_USD",
		Kind:    KindCommodity,
		Price:   decimal.NewFromInt(2000),
		MinSize: decimal.RequireFromString("0.01"),
	},
	"SPX500": {
		Symbol:  "SPX500",
		Kind:    KindIndex,
		Price:   decimal.NewFromInt(5000),
		MinSize: decimal.RequireFromString("0.1"),
	},
}

// Lookup returns the registered instrument for symbol.
func Lookup(symbol string) (Instrument, error) {
	inst, ok := Instruments[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument: %s", symbol)
	}
	return inst, nil
}

// Symbols lists the registered symbols in sorted order.
func Symbols() []string {
	out := make([]string, 0, len(Instruments))
	for s := range Instruments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
