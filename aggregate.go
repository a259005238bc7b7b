package brokerage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw payload of one report kind from a broker.
type Fetcher interface {
	Fetch(ctx context.Context, kind Kind) (Payload, error)
}

// Options selects what Aggregator.Run does with the fetched payloads.
type Options struct {
	Parse  bool // normalise payloads into tables
	Enrich bool // enrich instead of just flattening, only when Parse is set
}

// Report is the outcome of one kind: the raw payload, the table if it was parsed,
// or the error that stopped it.
type Report struct {
	Kind  Kind
	Raw   Payload
	Table *Table
	Err   error
}

// Result holds the reports of one aggregation, keyed by kind.
type Result map[Kind]Report

// Kinds returns the kinds in the result in canonical order.
func (r Result) Kinds() []Kind { return slices.Sorted(maps.Keys(r)) }

// Err joins the errors of all failed reports, nil if none failed.
func (r Result) Err() error {
	var errs []error
	for _, k := range r.Kinds() {
		if err := r[k].Err; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Aggregator fetches and normalises several report kinds of one broker.
type Aggregator struct {
	Fetcher    Fetcher
	Normalizer *Normalizer
	// Parallelism bounds the number of concurrent fetches; 0 or 1 fetches sequentially.
	Parallelism int
}

// Run fetches every kind once and normalises it according to opts.
//
// A kind the broker does not report fails the whole call with ErrUnknownReportKind
// before anything is fetched. Any other failure is recorded in the report of its kind
// and does not affect the others.
func (a *Aggregator) Run(ctx context.Context, kinds []Kind, opts Options) (Result, error) {
	var selected []Kind
	for _, k := range kinds {
		if slices.Contains(selected, k) {
			continue
		}
		if _, ok := kindNames[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownReportKind, k)
		}
		if a.Normalizer == nil || a.Normalizer.Schema == nil || !a.Normalizer.Schema.Supports(k) {
			return nil, fmt.Errorf("%w: %s is not available for this broker", ErrUnknownReportKind, k)
		}
		selected = append(selected, k)
	}

	reports := make([]Report, len(selected))
	var g errgroup.Group
	g.SetLimit(max(1, a.Parallelism))
	for i, k := range selected {
		g.Go(func() error {
			reports[i] = a.run(ctx, k, opts)
			return nil
		})
	}
	_ = g.Wait() // failures are reported per kind

	result := make(Result, len(reports))
	for _, r := range reports {
		if r.Err != nil {
			log.Printf("%s report failed: %v", r.Kind, r.Err)
		}
		result[r.Kind] = r
	}
	return result, nil
}

func (a *Aggregator) run(ctx context.Context, kind Kind, opts Options) Report {
	r := Report{Kind: kind}
	raw, err := a.Fetcher.Fetch(ctx, kind)
	if err != nil {
		r.Err = err
		return r
	}
	r.Raw = raw
	if !opts.Parse {
		return r
	}
	r.Table, r.Err = a.Normalizer.Normalize(ctx, kind, raw, opts.Enrich)
	return r
}
