package t212

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/etnz/brokerage"
	"github.com/shopspring/decimal"
)

const apiKey = "secret-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"/api/v0/equity/account/cash": `{"blocked":0,"free":1234.5,"invested":800,"pieCash":0,"ppl":12.3,"result":4,"total":2046.8}`,
		"/api/v0/equity/portfolio": `[
			{"ticker":"AAPL_US_EQ","quantity":2,"currentPrice":150,"frontend":"API"},
			{"ticker":"VUSA_EQ","quantity":10,"currentPrice":80.5,"frontend":"AUTOINVEST"}
		]`,
		"/api/v0/equity/pies": `[{"id":1,"cash":0,"result":{"value":510.2}}]`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != apiKey {
			http.Error(w, `{"code":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientGet(t *testing.T) {
	srv := newTestServer(t)
	c := New(NewConfig(srv.URL, apiKey)).WithHTTPClient(srv.Client())

	p, err := c.Get(context.Background(), "cash")
	if err != nil {
		t.Fatalf("Get(cash) unexpected error: %v", err)
	}
	if !strings.Contains(string(p), `"free":1234.5`) {
		t.Errorf("Get(cash) = %s, want the cash payload", p)
	}

	if _, err := c.Get(context.Background(), "orders"); !errors.Is(err, brokerage.ErrUnknownReportKind) {
		t.Errorf("Get(orders) error = %v, want ErrUnknownReportKind", err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	srv := newTestServer(t)
	c := New(NewConfig(srv.URL, "wrong")).WithHTTPClient(srv.Client())

	_, err := c.Fetch(context.Background(), brokerage.Portfolio)
	var terr *brokerage.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Fetch() error = %v, want a TransportError", err)
	}
	if terr.StatusCode != http.StatusUnauthorized || terr.Op != "portfolio" {
		t.Errorf("TransportError = %+v, want 401 on portfolio", terr)
	}
}

func TestClientMaxResponseSize(t *testing.T) {
	srv := newTestServer(t)
	c := New(NewConfig(srv.URL, apiKey)).WithHTTPClient(srv.Client())
	c.MaxResponseSize = 10

	_, err := c.Get(context.Background(), "cash")
	if !errors.Is(err, errTooLarge) {
		t.Errorf("Get() error = %v, want %v", err, errTooLarge)
	}
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{
		"cash": "https://live.trading212.com/api/v0/equity/account/cash",
		"Pies": "https://live.trading212.com/api/v0/equity/pies",
		"headers": {"Authorization": "abc"}
	}`))
	if err != nil {
		t.Fatalf("DecodeConfig() unexpected error: %v", err)
	}
	if got := cfg.Headers.Get("Authorization"); got != "abc" {
		t.Errorf("Authorization = %q, want %q", got, "abc")
	}
	if got := cfg.Endpoints["pies"]; got != "https://live.trading212.com/api/v0/equity/pies" {
		t.Errorf("Endpoints[pies] = %q", got)
	}
	if len(cfg.Endpoints) != 2 {
		t.Errorf("len(Endpoints) = %d, want 2", len(cfg.Endpoints))
	}

	if _, err := DecodeConfig([]byte(`{"cash": "x"}`)); err == nil {
		t.Error("DecodeConfig() without headers: want an error")
	}
}

func TestAggregateTrading212(t *testing.T) {
	srv := newTestServer(t)
	c := New(NewConfig(srv.URL, apiKey)).WithHTTPClient(srv.Client())

	agg := &brokerage.Aggregator{
		Fetcher: c,
		Normalizer: &brokerage.Normalizer{
			Schema: brokerage.T212,
			References: brokerage.NewReferences(func() ([]brokerage.Reference, error) {
				return []brokerage.Reference{{Ticker: "AAPL_US_EQ", Name: "Apple", Currency: "EUR"}}, nil
			}),
			PieLabels: brokerage.NewPieLabels(func() ([]brokerage.PieLabel, error) {
				return []brokerage.PieLabel{{ID: 1, Asset: "ETF", Name: "World"}}, nil
			}),
			Converter: brokerage.NewConverter("EUR", nil),
		},
		Parallelism: 4,
	}
	res, err := agg.Run(context.Background(), []brokerage.Kind{brokerage.Cash, brokerage.Portfolio, brokerage.Pies, brokerage.Instruments},
		brokerage.Options{Parse: true, Enrich: true})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	// instruments is not served by the test server
	var terr *brokerage.TransportError
	if !errors.As(res[brokerage.Instruments].Err, &terr) || terr.StatusCode != http.StatusNotFound {
		t.Errorf("instruments error = %v, want a 404 TransportError", res[brokerage.Instruments].Err)
	}

	for kind, want := range map[brokerage.Kind]string{
		brokerage.Cash:      "1234.5",
		brokerage.Portfolio: "300",
		brokerage.Pies:      "510.2",
	} {
		r := res[kind]
		if r.Err != nil {
			t.Errorf("%s: unexpected error: %v", kind, r.Err)
			continue
		}
		if r.Table.Len() != 1 {
			t.Errorf("%s: got %d rows, want 1", kind, r.Table.Len())
			continue
		}
		if got, _ := r.Table.Decimal(0, "Value"); !got.Equal(decimal.RequireFromString(want)) {
			t.Errorf("%s: Value = %s, want %s", kind, got, want)
		}
	}
}
