package brokerage

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// ValueRule computes the market value of a position record.
type ValueRule func(r Record) (decimal.Decimal, error)

// Product values a position as the product of numeric fields, e.g. quantity * price.
func Product(fields ...string) ValueRule {
	return func(r Record) (decimal.Decimal, error) {
		v := decimal.NewFromInt(1)
		for _, f := range fields {
			d, ok := r.Decimal(f)
			if !ok {
				return decimal.Zero, fmt.Errorf("field %q is missing or not a number", f)
			}
			v = v.Mul(d)
		}
		return v, nil
	}
}

// Sum values a position as the sum of numeric fields, e.g. nominal value + profit.
func Sum(fields ...string) ValueRule {
	return func(r Record) (decimal.Decimal, error) {
		v := decimal.Zero
		for _, f := range fields {
			d, ok := r.Decimal(f)
			if !ok {
				return decimal.Zero, fmt.Errorf("field %q is missing or not a number", f)
			}
			v = v.Add(d)
		}
		return v, nil
	}
}

// Schema adapts the normalisers to the field names of one broker.
type Schema struct {
	Broker string

	// Paths locates the collection of each supported kind in the payload (jsonpath).
	// A kind missing from Paths is not supported by the broker.
	Paths map[Kind]string
	// Columns are the columns every flattened table of that kind starts with, even
	// when the payload is empty.
	Columns map[Kind][]string

	FreeCash     string // cash field kept by the enriched cash report
	CashCurrency string // optional field holding the cash currency

	Ticker     string            // position field joined with References
	Value      ValueRule         // position market value
	Exclude    map[string]string // positions whose field equals the value are dropped
	AssetClass string            // constant label of the enriched positions
	// AccountCurrency is set when position values are already reported in the
	// account currency: they are rounded but not converted.
	AccountCurrency bool

	PieID    string // pie field joined with PieLabels
	PieValue string // pie field holding its current value
}

// Supports returns true if the broker reports kind.
func (s *Schema) Supports(kind Kind) bool {
	_, ok := s.Paths[kind]
	return ok
}

// Kinds returns the supported kinds in canonical order.
func (s *Schema) Kinds() []Kind {
	return slices.DeleteFunc(Kinds(), func(k Kind) bool { return !s.Supports(k) })
}

// excluded returns true if the record matches one of the exclusion rules.
func (s *Schema) excluded(r Record) bool {
	for field, value := range s.Exclude {
		if v, ok := r.String(field); ok && v == value {
			return true
		}
	}
	return false
}

// T212 describes the Trading 212 public API (https://t212public-api-docs.redoc.ly/).
var T212 = &Schema{
	Broker: "t212",
	Paths: map[Kind]string{
		Cash:        "$",
		Portfolio:   "$",
		Instruments: "$",
		Pies:        "$",
	},
	Columns: map[Kind][]string{
		Cash: {"blocked", "free", "invested", "pieCash", "ppl", "result", "total"},
		Portfolio: {"ticker", "quantity", "averagePrice", "currentPrice", "ppl", "fxPpl",
			"initialFillDate", "frontend", "maxBuy", "maxSell", "pieQuantity"},
		Instruments: {"ticker", "type", "workingScheduleId", "isin", "currencyCode", "name",
			"shortName", "minTradeQuantity", "maxOpenQuantity", "addedOn"},
		Pies: {"id", "cash", "progress", "status", "dividendDetails.gained",
			"dividendDetails.inCash", "dividendDetails.reinvested", "result.investedValue",
			"result.result", "result.resultCoef", "result.value"},
	},
	FreeCash:   "free",
	Ticker:     "ticker",
	Value:      Product("quantity", "currentPrice"),
	Exclude:    map[string]string{"frontend": "AUTOINVEST"},
	AssetClass: "Corporate equity",
	PieID:      "id",
	PieValue:   "result.value",
}

// XTB describes the xStation websocket API (http://developers.xstore.pro/documentation/).
// Every response wraps its data in "returnData".
var XTB = &Schema{
	Broker: "xtb",
	Paths: map[Kind]string{
		Cash:        "$.returnData",
		Portfolio:   "$.returnData",
		Instruments: "$.returnData",
	},
	Columns: map[Kind][]string{
		Cash: {"balance", "credit", "currency", "equity", "margin", "margin_free", "margin_level"},
		Portfolio: {"symbol", "order", "position", "cmd", "volume", "open_price", "close_price",
			"nominalValue", "profit", "margin", "sl", "tp", "open_time", "customComment"},
		Instruments: {"symbol", "description", "categoryName", "groupName", "currency",
			"currencyProfit", "type", "ask", "bid", "precision", "contractSize", "lotMin",
			"lotMax", "lotStep"},
	},
	FreeCash:        "balance",
	CashCurrency:    "currency",
	Ticker:          "symbol",
	Value:           Sum("nominalValue", "profit"),
	AssetClass:      "ETF - Stocks",
	AccountCurrency: true,
}

// SchemaFor returns the schema of a broker by name.
func SchemaFor(broker string) (*Schema, error) {
	switch broker {
	case T212.Broker:
		return T212, nil
	case XTB.Broker:
		return XTB, nil
	}
	return nil, fmt.Errorf("unknown broker %q", broker)
}
