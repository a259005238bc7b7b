package brokerage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeFetcher serves fixed payloads and counts fetches per kind.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[Kind]Payload
	errs     map[Kind]error
	fetched  map[Kind]int
}

func (f *fakeFetcher) Fetch(_ context.Context, kind Kind) (Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched == nil {
		f.fetched = make(map[Kind]int)
	}
	f.fetched[kind]++
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f.payloads[kind], nil
}

func TestAggregatorRun(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: map[Kind]Payload{
			Cash:        Payload(`{"free": 1234.5, "margin": 0}`),
			Portfolio:   Payload(`[{"ticker":"SAP_EQ","quantity":1}]`),
			Instruments: Payload(`[]`),
		},
		errs: map[Kind]error{
			Pies: &TransportError{Broker: "t212", Op: "pies", StatusCode: 429},
		},
	}
	n, _ := newT212Normalizer()
	agg := Aggregator{Fetcher: fetcher, Normalizer: n, Parallelism: 4}

	res, err := agg.Run(context.Background(), []Kind{Cash, Portfolio, Pies, Cash, Instruments}, Options{Parse: true, Enrich: true})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}

	if diff := cmp.Diff([]Kind{Cash, Portfolio, Instruments, Pies}, res.Kinds()); diff != "" {
		t.Errorf("Run() kinds mismatch (-want +got):\n%s", diff)
	}
	for _, k := range res.Kinds() {
		if fetcher.fetched[k] != 1 {
			t.Errorf("%s fetched %d times, want 1", k, fetcher.fetched[k])
		}
	}

	if r := res[Cash]; r.Err != nil || r.Table == nil || r.Table.Len() != 1 {
		t.Errorf("cash report = %+v, want a one row table", r)
	}
	if r := res[Instruments]; r.Err != nil || r.Table == nil || r.Table.Len() != 0 {
		t.Errorf("instruments report = %+v, want an empty table", r)
	}

	// a broken payload only fails its own report, the raw payload is kept
	pf := res[Portfolio]
	if !errors.Is(pf.Err, ErrMalformedPayload) {
		t.Errorf("portfolio error = %v, want ErrMalformedPayload", pf.Err)
	}
	if string(pf.Raw) != `[{"ticker":"SAP_EQ","quantity":1}]` {
		t.Errorf("portfolio raw = %s, want the fetched payload", pf.Raw)
	}

	var terr *TransportError
	if !errors.As(res[Pies].Err, &terr) || terr.StatusCode != 429 {
		t.Errorf("pies error = %v, want the transport error", res[Pies].Err)
	}

	err = res.Err()
	if !errors.Is(err, ErrMalformedPayload) || !errors.As(err, &terr) {
		t.Errorf("Result.Err() = %v, want both failures", err)
	}
}

func TestAggregatorRaw(t *testing.T) {
	payload := Payload(`{"free": 1, "unexpected": {"nested": true}}`)
	fetcher := &fakeFetcher{payloads: map[Kind]Payload{Cash: payload}}
	agg := Aggregator{Fetcher: fetcher, Normalizer: &Normalizer{Schema: T212}}

	res, err := agg.Run(context.Background(), []Kind{Cash}, Options{})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	r := res[Cash]
	if r.Table != nil || r.Err != nil {
		t.Errorf("raw report = %+v, want no table and no error", r)
	}
	if string(r.Raw) != string(payload) {
		t.Errorf("raw report payload = %s, want %s", r.Raw, payload)
	}
	if err := res.Err(); err != nil {
		t.Errorf("Result.Err() = %v, want nil", err)
	}
}

func TestAggregatorUnknownKind(t *testing.T) {
	for _, kinds := range [][]Kind{{Cash, Pies}, {Kind(42)}} {
		fetcher := &fakeFetcher{}
		agg := Aggregator{Fetcher: fetcher, Normalizer: &Normalizer{Schema: XTB}}
		_, err := agg.Run(context.Background(), kinds, Options{Parse: true})
		if !errors.Is(err, ErrUnknownReportKind) {
			t.Errorf("Run(%v) error = %v, want ErrUnknownReportKind", kinds, err)
		}
		if len(fetcher.fetched) != 0 {
			t.Errorf("Run(%v) fetched %v before failing", kinds, fetcher.fetched)
		}
	}
}

func TestAggregatorReferencesUnavailable(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[Kind]Payload{
		Cash:        Payload(`{"free": 10}`),
		Portfolio:   Payload(t212Portfolio),
		Instruments: Payload(`[{"ticker":"SAP_EQ","name":"SAP"}]`),
		Pies:        Payload(t212Pies),
	}}
	n, _ := newT212Normalizer()
	n.References = brokenReferences()
	agg := Aggregator{Fetcher: fetcher, Normalizer: n, Parallelism: 2}

	res, err := agg.Run(context.Background(), Kinds(), Options{Parse: true, Enrich: true})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	for _, k := range []Kind{Cash, Instruments, Pies} {
		if err := res[k].Err; err != nil {
			t.Errorf("%s error = %v, want nil", k, err)
		}
	}
	if err := res[Portfolio].Err; !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("portfolio error = %v, want ErrResourceUnavailable", err)
	}
}
