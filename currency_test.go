package brokerage

import (
	"context"
	"errors"
	"testing"
)

func TestConverterReportingCurrencyOnly(t *testing.T) {
	for _, set := range [][]string{nil, {"EUR"}, {"EUR", "eur", " EUR"}} {
		src := &countingSource{}
		c := NewConverter("EUR", src)
		rates, err := c.Rates(context.Background(), set)
		if err != nil {
			t.Fatalf("Rates(%q) unexpected error: %v", set, err)
		}
		if src.Calls() != 0 {
			t.Errorf("Rates(%q) called the source %d times, want 0", set, src.Calls())
		}
		got, err := rates.Convert(D("12.345"), "EUR")
		if err != nil {
			t.Fatalf("Convert() unexpected error: %v", err)
		}
		if s := got.StringFixed(2); s != "12.35" {
			t.Errorf("Convert(12.345 EUR) = %s, want 12.35", s)
		}
	}
}

func TestConverterConvert(t *testing.T) {
	src := &countingSource{rates: RateTable{"USD": D("0.9")}}
	c := NewConverter("EUR", src)
	rates, err := c.Rates(context.Background(), []string{"USD", "EUR", "USD"})
	if err != nil {
		t.Fatalf("Rates() unexpected error: %v", err)
	}
	if src.Calls() != 1 {
		t.Errorf("source called %d times, want 1", src.Calls())
	}

	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"100.004", "USD", "90.00"},
		{"100", "usd", "90.00"},
		{"0.05", "USD", "0.05"}, // 0.045 rounds half away from zero
		{"-0.05", "USD", "-0.05"},
		{"7.125", "EUR", "7.13"},
	}
	for _, tc := range tests {
		got, err := rates.Convert(D(tc.amount), tc.currency)
		if err != nil {
			t.Errorf("Convert(%s %s) unexpected error: %v", tc.amount, tc.currency, err)
			continue
		}
		if s := got.StringFixed(2); s != tc.want {
			t.Errorf("Convert(%s %s) = %s, want %s", tc.amount, tc.currency, s, tc.want)
		}
	}

	if _, err := rates.Convert(D("1"), "GBP"); !errors.Is(err, ErrRateUnavailable) {
		t.Errorf("Convert(GBP) error = %v, want ErrRateUnavailable", err)
	}
}

func TestConverterUnavailable(t *testing.T) {
	tests := []struct {
		name       string
		source     RateSource
		currencies []string
	}{
		{"unknown to the source", &countingSource{rates: RateTable{"USD": D("0.9")}}, []string{"USD", "JPY"}},
		{"not a currency", &countingSource{}, []string{"ABC"}},
		{"source failure", &countingSource{err: errors.New("timeout")}, []string{"USD"}},
		{"no source", nil, []string{"USD"}},
		{"zero rate", &countingSource{rates: RateTable{"USD": D("0")}}, []string{"USD"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewConverter("eur", tc.source)
			if _, err := c.Rates(context.Background(), tc.currencies); !errors.Is(err, ErrRateUnavailable) {
				t.Errorf("Rates(%q) error = %v, want ErrRateUnavailable", tc.currencies, err)
			}
		})
	}
}

func TestRound(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2.345", "2.35"},
		{"-2.345", "-2.35"},
		{"2.344", "2.34"},
		{"2.335", "2.34"},
		{"1.005", "1.01"},
		{"10", "10.00"},
	}
	for _, tc := range tests {
		if got := Round(D(tc.in)).StringFixed(2); got != tc.want {
			t.Errorf("Round(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
