package brokerage

import (
	"context"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimals monetary values are rounded to.
const Decimals = 2

// RateTable maps a currency code to the rate converting it into the reporting currency.
type RateTable map[string]decimal.Decimal

// RateSource looks up conversion rates into the reporting currency.
//
// The returned table may omit currencies the source does not know about.
type RateSource interface {
	Rates(ctx context.Context, reporting string, currencies []string) (RateTable, error)
}

// Converter normalises monetary values into a single reporting currency.
type Converter struct {
	Reporting string
	Source    RateSource
}

// NewConverter returns a converter into the reporting currency.
func NewConverter(reporting string, source RateSource) *Converter {
	return &Converter{Reporting: strings.ToUpper(reporting), Source: source}
}

// Rates returns the table converting every currency into the reporting currency.
//
// When the only currency is the reporting currency itself the source is not called.
// Any currency the source cannot resolve fails with ErrRateUnavailable.
func (c *Converter) Rates(ctx context.Context, currencies []string) (RateTable, error) {
	reporting := strings.ToUpper(c.Reporting)
	table := RateTable{reporting: decimal.NewFromInt(1)}

	set := make(map[string]bool)
	for _, cur := range currencies {
		cur = strings.ToUpper(strings.TrimSpace(cur))
		if cur == reporting {
			continue
		}
		if money.GetCurrency(cur) == nil {
			return nil, fmt.Errorf("%w: %q is not a currency", ErrRateUnavailable, cur)
		}
		set[cur] = true
	}
	if len(set) == 0 {
		return table, nil
	}
	missing := slices.Sorted(maps.Keys(set))
	if c.Source == nil {
		return nil, fmt.Errorf("%w: no rate source to convert %s into %s", ErrRateUnavailable, strings.Join(missing, ","), reporting)
	}

	log.Printf("fetching %s rates for %s", reporting, strings.Join(missing, ","))
	rates, err := c.Source.Rates(ctx, reporting, missing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateUnavailable, err)
	}
	for _, cur := range missing {
		r, ok := rates[cur]
		if !ok || !r.IsPositive() {
			return nil, fmt.Errorf("%w: no %s rate for %s", ErrRateUnavailable, reporting, cur)
		}
		table[cur] = r
	}
	return table, nil
}

// Convert multiplies amount by the rate of currency and rounds the result to two
// decimals, half away from zero.
func (t RateTable) Convert(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	r, ok := t[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no rate for %s", ErrRateUnavailable, currency)
	}
	return Round(amount.Mul(r)), nil
}

// Round rounds a monetary value to two decimals, half away from zero (2.345 -> 2.35,
// -2.345 -> -2.35).
func Round(v decimal.Decimal) decimal.Decimal { return v.Round(Decimals) }
