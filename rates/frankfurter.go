// Package rates looks up currency conversion rates from the ECB reference rates
// published by the Frankfurter API (https://frankfurter.dev).
package rates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/brokerage"
	"github.com/etnz/brokerage/httpcache"
	"github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public Frankfurter endpoint.
const DefaultBaseURL = "https://api.frankfurter.app"

// precision of the inverted rates.
const precision = 10

// Frankfurter is a brokerage.RateSource. Rates are kept in memory for an hour, and
// responses are cached on disk for the day.
//
// It is safe for concurrent use. A nil Client is http.DefaultClient.
type Frankfurter struct {
	BaseURL string
	Client  *http.Client

	once  sync.Once
	cache *cache.Cache
}

// NewFrankfurter returns a rate source using the public endpoint.
func NewFrankfurter() *Frankfurter {
	return &Frankfurter{
		BaseURL: DefaultBaseURL,
		Client:  httpcache.NewClient(httpcache.Daily),
	}
}

func (f *Frankfurter) memory() *cache.Cache {
	f.once.Do(func() { f.cache = cache.New(time.Hour, 10*time.Minute) })
	return f.cache
}

// Rates returns, for each currency, the rate converting it into reporting.
// Currencies unknown to the ECB are absent from the table.
func (f *Frankfurter) Rates(ctx context.Context, reporting string, currencies []string) (brokerage.RateTable, error) {
	memory := f.memory()
	table := make(brokerage.RateTable, len(currencies))
	var missing []string
	for _, cur := range currencies {
		if cur == reporting {
			table[cur] = decimal.NewFromInt(1)
			continue
		}
		if r, ok := memory.Get(reporting + "/" + cur); ok {
			table[cur] = r.(decimal.Decimal)
			continue
		}
		missing = append(missing, cur)
	}
	if len(missing) == 0 {
		return table, nil
	}

	doc, err := f.latest(ctx, reporting, missing)
	if err != nil {
		return nil, err
	}
	for _, cur := range missing {
		// the ECB quotes 1 reporting = x cur, invert it to get cur -> reporting
		v, err := jsonpath.Get("$.rates."+cur, doc)
		if err != nil {
			log.Printf("no %s/%s rate: %v", reporting, cur, err)
			continue
		}
		quote, err := toDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s/%s rate: %w", reporting, cur, err)
		}
		if !quote.IsPositive() {
			return nil, fmt.Errorf("invalid %s/%s rate: %s", reporting, cur, quote)
		}
		r := decimal.NewFromInt(1).DivRound(quote, precision)
		memory.SetDefault(reporting+"/"+cur, r)
		table[cur] = r
	}
	return table, nil
}

// latest queries /latest?from=reporting&to=currencies and returns the decoded json.
//
//	{"amount":1.0,"base":"EUR","date":"2025-03-14","rates":{"GBP":0.8407,"USD":1.0892}}
func (f *Frankfurter) latest(ctx context.Context, reporting string, currencies []string) (any, error) {
	q := url.Values{}
	q.Set("from", reporting)
	q.Set("to", strings.Join(currencies, ","))
	addr := strings.TrimSuffix(f.BaseURL, "/") + "/latest?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot create http request %q: %w", addr, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &brokerage.TransportError{Broker: "frankfurter", Op: "latest", Err: err}
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("cannot read receiving http body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &brokerage.TransportError{Broker: "frankfurter", Op: "latest", StatusCode: resp.StatusCode, Body: buf.Bytes()}
	}

	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("could not decode frankfurter json: %w", err)
	}
	return doc, nil
}

// toDecimal converts a decoded json number.
func toDecimal(v any) (decimal.Decimal, error) {
	// jsonpath sometimes wraps a single answer in a list
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	switch v := v.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("not a number: %v", v)
}
