package brokerage

import (
	"maps"
	"slices"
	"sort"
	"strconv"

	"github.com/PaesslerAG/jsonpath"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Record is one flattened JSON object: nested objects are expanded into dotted
// keys ("result.value") and numbers are decimal.Decimal.
type Record map[string]any

// String returns the field as a string.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Decimal returns the field as a number.
func (r Record) Decimal(field string) (decimal.Decimal, bool) {
	d, ok := r[field].(decimal.Decimal)
	return d, ok
}

// flattenObject copies obj into rec, prefixing nested keys with their parent name.
// Keys are walked in order, and a dotted key produced twice ("a.b" next to
// {"a": {"b": ...}}) makes the row malformed.
func flattenObject(kind Kind, prefix string, obj map[string]any, rec Record) error {
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		v := obj[k]
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			if err := flattenObject(kind, key, nested, rec); err != nil {
				return err
			}
			continue
		}
		if _, exists := rec[key]; exists {
			return malformed(kind, "field %q is defined twice", key)
		}
		c, err := cell(kind, key, v)
		if err != nil {
			return err
		}
		rec[key] = c
	}
	return nil
}

// cell converts a decoded JSON leaf into a table cell.
func cell(kind Kind, key string, v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return nil, malformed(kind, "field %q: invalid number %q", key, v.String())
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return v, nil
	}
}

// collection extracts the value at path in the decoded document.
// An empty path or "$" is the document itself.
func collection(kind Kind, path string, doc any) (any, error) {
	if doc == nil || path == "" || path == "$" {
		return doc, nil
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, malformed(kind, "cannot find %s: %v", path, err)
	}
	return v, nil
}

// records flattens the collection found at path.
//
// A single object yields one record for the Cash kind. For the other kinds a list
// yields one record per element, and an object of objects yields one record per key
// (keys sorted numerically when they are ids). For Pies the key is the pie id: it is
// stored under keyField when the element does not carry it already.
func records(kind Kind, path, keyField string, doc any) ([]Record, error) {
	v, err := collection(kind, path, doc)
	if err != nil {
		return nil, err
	}
	var items []any
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []any:
		items = v
	case map[string]any:
		if kind == Cash {
			if len(v) == 0 {
				return nil, nil
			}
			items = []any{v}
			break
		}
		keys := slices.Collect(maps.Keys(v))
		sortKeys(keys)
		for _, k := range keys {
			obj, ok := v[k].(map[string]any)
			if !ok {
				return nil, malformed(kind, "entry %q is not an object", k)
			}
			if _, exists := obj[keyField]; !exists && kind == Pies && keyField != "" {
				obj = maps.Clone(obj)
				if _, err := strconv.ParseInt(k, 10, 64); err == nil {
					obj[keyField] = json.Number(k)
				} else {
					obj[keyField] = k
				}
			}
			items = append(items, obj)
		}
	default:
		return nil, malformed(kind, "expected a list or an object, got %T", v)
	}

	recs := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(kind, "row %d is not an object", i)
		}
		rec := make(Record, len(obj))
		if err := flattenObject(kind, "", obj, rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// sortKeys orders integer keys numerically, then other keys lexically.
func sortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
}

// flatTable lays records out in a table. Declared columns come first, in order,
// followed by every other discovered column in lexical order.
func flatTable(kind Kind, declared []string, recs []Record) *Table {
	columns := slices.Clone(declared)
	known := make(map[string]bool, len(columns))
	for _, c := range columns {
		known[c] = true
	}
	var extra []string
	for _, rec := range recs {
		for k := range rec {
			if !known[k] {
				known[k] = true
				extra = append(extra, k)
			}
		}
	}
	slices.Sort(extra)
	columns = append(columns, extra...)

	t := newTable(kind, columns)
	for _, rec := range recs {
		row := make(Row, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
