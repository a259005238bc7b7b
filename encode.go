package brokerage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Format is an artifact file format.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "md"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, CSV, Markdown:
		return f, nil
	case "markdown":
		return Markdown, nil
	}
	return "", fmt.Errorf("unknown format %q, expecting json, csv or md", s)
}

// EncodeTable writes the table in format f.
func EncodeTable(w io.Writer, t *Table, f Format) error {
	switch f {
	case JSON:
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	case CSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Columns); err != nil {
			return err
		}
		for _, row := range t.Rows {
			line := make([]string, len(row))
			for j, c := range row {
				line[j] = formatCell(c)
			}
			if err := cw.Write(line); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case Markdown:
		return encodeMarkdown(w, t)
	}
	return fmt.Errorf("unknown format %q", f)
}

func encodeMarkdown(w io.Writer, t *Table) error {
	bw := bufio.NewWriter(w)
	escape := strings.NewReplacer("|", `\|`, "\n", " ")
	line := func(cells []string) {
		bw.WriteString("|")
		for _, c := range cells {
			bw.WriteString(" " + escape.Replace(c) + " |")
		}
		bw.WriteString("\n")
	}
	line(t.Columns)
	sep := make([]string, len(t.Columns))
	for j := range sep {
		sep[j] = "---"
	}
	line(sep)
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for j, c := range row {
			cells[j] = formatCell(c)
		}
		line(cells)
	}
	return bw.Flush()
}

// formatCell renders a cell as text: numbers in plain decimal notation, nested
// values as compact JSON, nil as an empty string.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// MarshalJSON encodes the report as its table, its raw payload if it was not parsed,
// or {"error": "..."} if it failed. Transport failures also carry the HTTP status and
// the broker error code when they are known.
func (r Report) MarshalJSON() ([]byte, error) {
	switch {
	case r.Err != nil:
		var w jsonObjectWriter
		w.Append("error", r.Err.Error())
		var terr *TransportError
		if errors.As(r.Err, &terr) {
			w.Optional("status", terr.StatusCode)
			w.Optional("code", terr.Code)
		}
		return w.MarshalJSON()
	case r.Table != nil:
		return r.Table.MarshalJSON()
	}
	return r.Raw.MarshalJSON()
}

// SaveResult writes one file per report in dir, named "<broker>-<kind>.<format>", and
// returns the written paths. Unparsed and failed reports are always written as JSON.
func SaveResult(dir, broker string, r Result, f Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, k := range r.Kinds() {
		report := r[k]
		ext := f
		if report.Table == nil {
			ext = JSON
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", broker, k, ext))
		if err := writeReport(path, report, ext); err != nil {
			return paths, fmt.Errorf("cannot write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeReport(path string, report Report, f Format) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	if report.Table != nil && report.Err == nil {
		return EncodeTable(file, report.Table, f)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// MarshalJSON encodes the result as an object keyed by kind name, in canonical order.
func (r Result) MarshalJSON() ([]byte, error) {
	var w jsonObjectWriter
	for _, k := range r.Kinds() {
		w.Append(k.String(), r[k])
	}
	return w.MarshalJSON()
}
