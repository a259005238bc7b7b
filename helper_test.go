package brokerage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

// D is a helper for test to create a decimal from a const.
func D(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// decimalEqual compares decimals by value, 1.50 equals 1.5.
var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// countingSource is a RateSource serving fixed rates and counting its calls.
type countingSource struct {
	mu    sync.Mutex
	rates RateTable
	err   error
	calls int
	asked [][]string
}

func (s *countingSource) Rates(_ context.Context, reporting string, currencies []string) (RateTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.asked = append(s.asked, currencies)
	if s.err != nil {
		return nil, s.err
	}
	t := make(RateTable)
	for _, c := range currencies {
		if r, ok := s.rates[c]; ok {
			t[c] = r
		}
	}
	return t, nil
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testReferences() *References {
	return NewReferences(func() ([]Reference, error) {
		return []Reference{
			{Ticker: "AAPL_US_EQ", Name: "Apple", Currency: "USD"},
			{Ticker: "MSFT_US_EQ", Name: "Microsoft", Currency: "USD"},
			{Ticker: "VUSA_EQ", Name: "Vanguard S&P 500", Currency: "EUR"},
			{Ticker: "SAP_EQ", Name: "SAP", Currency: "EUR"},
			{Ticker: "ASML_EQ", Name: "ASML", Currency: "EUR"},
		}, nil
	})
}

func testPieLabels() *PieLabels {
	return NewPieLabels(func() ([]PieLabel, error) {
		return []PieLabel{
			{ID: 1, Asset: "ETF - Stocks", Name: "World"},
			{ID: 2, Asset: "Corporate equity", Name: "Tech"},
		}, nil
	})
}

// brokenReferences fails to load, as a missing file would.
func brokenReferences() *References {
	return NewReferences(func() ([]Reference, error) { return nil, errors.New("file not found") })
}

// newT212Normalizer returns a Trading 212 normalizer reporting in EUR with USD at 0.9.
func newT212Normalizer() (*Normalizer, *countingSource) {
	src := &countingSource{rates: RateTable{"USD": D("0.9")}}
	return &Normalizer{
		Schema:     T212,
		References: testReferences(),
		PieLabels:  testPieLabels(),
		Converter:  NewConverter("EUR", src),
	}, src
}

const t212Portfolio = `[
	{"ticker":"AAPL_US_EQ","quantity":2,"currentPrice":150,"frontend":"API"},
	{"ticker":"VUSA_EQ","quantity":10,"currentPrice":80.5,"frontend":"AUTOINVEST"},
	{"ticker":"MSFT_US_EQ","quantity":1,"currentPrice":410.333,"frontend":"IOS"},
	{"ticker":"UNKNOWN_EQ","quantity":5,"currentPrice":10,"frontend":"API"},
	{"ticker":"SAP_EQ","quantity":10,"currentPrice":120,"frontend":"ANDROID"}
]`

const t212Pies = `[
	{"id":1,"cash":0.5,"progress":0.4,"status":null,"result":{"investedValue":500,"value":510.2}},
	{"id":3,"cash":0,"progress":1,"status":"AHEAD","result":{"investedValue":10,"value":12}}
]`
