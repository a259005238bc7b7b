package brokerage

import (
	"bytes"
	"slices"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Row is one table line. Cells are string, decimal.Decimal, bool, nil, or a nested
// JSON value ([]any, map[string]any) kept verbatim.
type Row []any

// Table is a normalised report: a fixed list of columns and rows of matching length.
type Table struct {
	Kind    Kind
	Columns []string
	Rows    []Row
}

// Column names of the enriched tables.
var (
	CashColumns       = []string{"index", "Value"}
	AllocationColumns = []string{"Asset", "Value", "Name"}
)

func newTable(kind Kind, columns []string) *Table {
	return &Table{Kind: kind, Columns: slices.Clone(columns), Rows: []Row{}}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column, or -1.
func (t *Table) Index(column string) int { return slices.Index(t.Columns, column) }

// Value returns the cell at row i in column, nil if the column does not exist.
func (t *Table) Value(i int, column string) any {
	j := t.Index(column)
	if j < 0 || i < 0 || i >= len(t.Rows) || j >= len(t.Rows[i]) {
		return nil
	}
	return t.Rows[i][j]
}

// Decimal returns the cell at row i in column if it is a number.
func (t *Table) Decimal(i int, column string) (decimal.Decimal, bool) {
	d, ok := t.Value(i, column).(decimal.Decimal)
	return d, ok
}

// MarshalJSON encodes the table as an array of objects whose keys follow the column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		var w jsonObjectWriter
		for j, col := range t.Columns {
			w.Append(col, jsonCell(row[j]))
		}
		obj, err := w.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(obj)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// jsonCell turns decimals into JSON numbers instead of the quoted strings
// decimal.Decimal marshals to.
func jsonCell(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}
