package brokerage

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Normalizer reshapes the payloads of one broker into tables.
//
// References, PieLabels and Converter are only used by Enrich; Flatten never needs them.
type Normalizer struct {
	Schema     *Schema
	References *References
	PieLabels  *PieLabels
	Converter  *Converter
}

// Normalize flattens the payload, or enriches it if enrich is set.
func (n *Normalizer) Normalize(ctx context.Context, kind Kind, p Payload, enrich bool) (*Table, error) {
	if enrich {
		return n.Enrich(ctx, kind, p)
	}
	return n.Flatten(kind, p)
}

// Flatten lays the payload out as a table, one column per field, without any join,
// filter or conversion.
func (n *Normalizer) Flatten(kind Kind, p Payload) (*Table, error) {
	recs, err := n.records(kind, p)
	if err != nil {
		return nil, err
	}
	return flatTable(kind, n.Schema.Columns[kind], recs), nil
}

// Enrich produces the processed report of kind:
//   - Cash: the free cash only, in a single row labelled "Cash".
//   - Portfolio: positions valued in the reporting currency, labelled with References,
//     sorted by decreasing value.
//   - Instruments: same as Flatten.
//   - Pies: pie values labelled with PieLabels.
func (n *Normalizer) Enrich(ctx context.Context, kind Kind, p Payload) (*Table, error) {
	recs, err := n.records(kind, p)
	if err != nil {
		return nil, err
	}
	switch kind {
	case Cash:
		return n.cash(ctx, recs)
	case Portfolio:
		return n.portfolio(ctx, recs)
	case Instruments:
		return flatTable(kind, n.Schema.Columns[kind], recs), nil
	case Pies:
		return n.pies(recs)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownReportKind, kind)
}

func (n *Normalizer) records(kind Kind, p Payload) ([]Record, error) {
	if n.Schema == nil {
		return nil, fmt.Errorf("%w: %s: no broker schema", ErrUnknownReportKind, kind)
	}
	path, ok := n.Schema.Paths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not reported by %s", ErrUnknownReportKind, kind, n.Schema.Broker)
	}
	doc, err := p.decode(kind)
	if err != nil {
		return nil, err
	}
	return records(kind, path, n.Schema.PieID, doc)
}

func (n *Normalizer) converter() (*Converter, error) {
	if n.Converter == nil || n.Converter.Reporting == "" {
		return nil, fmt.Errorf("%w: no reporting currency configured", ErrRateUnavailable)
	}
	return n.Converter, nil
}

func (n *Normalizer) cash(ctx context.Context, recs []Record) (*Table, error) {
	t := newTable(Cash, CashColumns)
	for _, rec := range recs {
		free, ok := rec.Decimal(n.Schema.FreeCash)
		if !ok {
			return nil, malformed(Cash, "field %q is missing or not a number", n.Schema.FreeCash)
		}
		if field := n.Schema.CashCurrency; field != "" {
			if cur, ok := rec.String(field); ok {
				conv, err := n.converter()
				if err != nil {
					return nil, fmt.Errorf("cash: %w", err)
				}
				rates, err := conv.Rates(ctx, []string{cur})
				if err != nil {
					return nil, fmt.Errorf("cash: %w", err)
				}
				if free, err = rates.Convert(free, cur); err != nil {
					return nil, fmt.Errorf("cash: %w", err)
				}
			}
		}
		t.Rows = append(t.Rows, Row{"Cash", free})
	}
	return t, nil
}

type position struct {
	ref   Reference
	value decimal.Decimal
}

func (n *Normalizer) portfolio(ctx context.Context, recs []Record) (*Table, error) {
	t := newTable(Portfolio, AllocationColumns)
	if len(recs) == 0 {
		return t, nil
	}
	if n.Schema.Value == nil {
		return nil, fmt.Errorf("%w: %s has no position value rule", ErrUnknownReportKind, n.Schema.Broker)
	}

	// Filter and value every position first: a malformed row fails the whole report
	// even if the join would have dropped it.
	type valued struct {
		ticker string
		value  decimal.Decimal
	}
	rows := make([]valued, 0, len(recs))
	for i, rec := range recs {
		if n.Schema.excluded(rec) {
			continue
		}
		ticker, ok := rec.String(n.Schema.Ticker)
		if !ok {
			return nil, malformed(Portfolio, "row %d: field %q is missing or not a string", i, n.Schema.Ticker)
		}
		v, err := n.Schema.Value(rec)
		if err != nil {
			return nil, malformed(Portfolio, "row %d (%s): %v", i, ticker, err)
		}
		rows = append(rows, valued{ticker, v})
	}
	if len(rows) == 0 {
		return t, nil
	}

	refs, err := n.References.Load()
	if err != nil {
		return nil, err
	}
	positions := make([]position, 0, len(rows))
	var currencies []string
	for _, r := range rows {
		ref, ok := refs[r.ticker]
		if !ok {
			continue // inner join
		}
		positions = append(positions, position{ref: ref, value: r.value})
		if !slices.Contains(currencies, ref.Currency) {
			currencies = append(currencies, ref.Currency)
		}
	}
	if len(positions) == 0 {
		return t, nil
	}

	if n.Schema.AccountCurrency {
		for i := range positions {
			positions[i].value = Round(positions[i].value)
		}
	} else {
		conv, err := n.converter()
		if err != nil {
			return nil, fmt.Errorf("portfolio: %w", err)
		}
		rates, err := conv.Rates(ctx, currencies)
		if err != nil {
			return nil, fmt.Errorf("portfolio: %w", err)
		}
		for i, p := range positions {
			if positions[i].value, err = rates.Convert(p.value, p.ref.Currency); err != nil {
				return nil, fmt.Errorf("portfolio: %w", err)
			}
		}
	}

	slices.SortStableFunc(positions, func(a, b position) int { return b.value.Cmp(a.value) })
	for _, p := range positions {
		t.Rows = append(t.Rows, Row{n.Schema.AssetClass, p.value, p.ref.Name})
	}
	return t, nil
}

func (n *Normalizer) pies(recs []Record) (*Table, error) {
	t := newTable(Pies, AllocationColumns)
	if len(recs) == 0 {
		return t, nil
	}
	type pie struct {
		id    int64
		value decimal.Decimal
	}
	list := make([]pie, 0, len(recs))
	for i, rec := range recs {
		id, ok := rec.Decimal(n.Schema.PieID)
		if !ok || !id.IsInteger() {
			return nil, malformed(Pies, "row %d: field %q is missing or not an integer", i, n.Schema.PieID)
		}
		v, ok := rec.Decimal(n.Schema.PieValue)
		if !ok {
			return nil, malformed(Pies, "row %d: field %q is missing or not a number", i, n.Schema.PieValue)
		}
		list = append(list, pie{id.IntPart(), v})
	}

	labels, err := n.PieLabels.Load()
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		l, ok := labels[p.id]
		if !ok {
			continue // inner join
		}
		t.Rows = append(t.Rows, Row{l.Asset, p.value, l.Name})
	}
	return t, nil
}
